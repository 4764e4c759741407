package compactor

// Plan is the pure round planner (spec.md §4, "Round Planner"): given a
// snapshot view of one partition and the active policy, it returns the single
// Action the driver should execute this round. Plan has no side effects and
// performs no I/O; everything it needs is already inside view.
//
// FIDELITY: decision order follows spec.md §4.2.1 exactly — guard rails,
// schema guard, L0 cluster promotion, L1->L2 promotion, Noop. Earlier steps
// always win; a later step is never consulted once an earlier one fires.
func Plan(view *View, cfg Config) Action {
	// 1. Guard rails: every candidate set built below is trimmed by
	// fitMemoryBudget to memory_budget_bytes and max_num_files_per_plan; a
	// step whose trimmed set comes out empty yields no action. An empty view
	// has nothing to plan at all.
	if view.Len() == 0 {
		return noopAction()
	}

	// 2. Schema guard: a table with more columns than the policy allows is
	// permanently skipped by returning Abort; the driver skip-marks the
	// partition rather than retrying it next round.
	if view.ColumnCount > cfg.MaxNumColumnsPerTable {
		return abortAction("column count exceeds max_num_columns_per_table")
	}

	// 3. L0 cluster promotion: any L0 file overlapping one or more L1 files,
	// plus every L1 file it overlaps, forms a cluster that must compact
	// together to preserve L1 non-overlap (invariant 1). L0 files with no L1
	// overlap compact directly to L1 once enough of them have accumulated.
	if action, ok := planL0(view, cfg); ok {
		return action
	}

	// 4. L1 -> L2 promotion: once enough non-overlapping L1 files have
	// accumulated, the oldest run is promoted to L2.
	if action, ok := planL1Promotion(view, cfg); ok {
		return action
	}

	// 5. Nothing to do this round.
	return noopAction()
}

// planL0 looks for L0 work: either an overlap cluster that must merge with
// its overlapping L1 neighbors, or a plain L0-to-L1 compaction once enough
// L0 files exist. Returns ok=false if there is no L0 work this round.
func planL0(view *View, cfg Config) (Action, bool) {
	l0s := view.Files(L0)
	if len(l0s) == 0 {
		return Action{}, false
	}

	// Prefer an overlap cluster: the first L0 (in deterministic order) that
	// overlaps any L1 file pulls in every L1 file it overlaps, transitively
	// closed over further L0 overlaps with those L1s. This keeps L1
	// non-overlapping (invariant 1) after the round commits.
	for _, l0 := range l0s {
		l1Ids := view.OverlapsL1(l0.ID)
		if len(l1Ids) == 0 {
			continue
		}
		cluster := buildL0Cluster(view, l0, cfg)
		if len(cluster) == 0 {
			continue
		}
		return planSplit(cluster, L1, cfg), true
	}

	// No overlap: once min_num_l1_files_to_compact-worth of evidence exists
	// that L0 is backing up (spec.md §4.2.1 treats the L1 threshold as the
	// general "enough files accumulated" signal, reused here for L0), compact
	// the oldest run of L0 files straight to L1.
	if len(l0s) >= cfg.MinNumL1FilesToCompact {
		run := fitMemoryBudget(l0s, cfg)
		if len(run) == 0 {
			return Action{}, false
		}
		return planSplit(run, L1, cfg), true
	}

	return Action{}, false
}

// buildL0Cluster starts from seed and transitively pulls in every L1 file it
// overlaps, and every further L0 file that overlaps one of those L1 files,
// until the cluster is closed. The result is sorted by Before() and trimmed
// to the memory budget and max_num_files_per_plan.
func buildL0Cluster(view *View, seed *File, cfg Config) []*File {
	includedL0 := map[FileID]bool{seed.ID: true}
	includedL1 := map[FileID]bool{}

	frontierL0 := []FileID{seed.ID}
	for len(frontierL0) > 0 {
		id := frontierL0[len(frontierL0)-1]
		frontierL0 = frontierL0[:len(frontierL0)-1]

		for _, l1ID := range view.OverlapsL1(id) {
			if includedL1[l1ID] {
				continue
			}
			includedL1[l1ID] = true

			for _, l0 := range view.Files(L0) {
				if includedL0[l0.ID] {
					continue
				}
				for _, overlapped := range view.OverlapsL1(l0.ID) {
					if overlapped == l1ID {
						includedL0[l0.ID] = true
						frontierL0 = append(frontierL0, l0.ID)
						break
					}
				}
			}
		}
	}

	ids := make([]FileID, 0, len(includedL0)+len(includedL1))
	for id := range includedL0 {
		ids = append(ids, id)
	}
	for id := range includedL1 {
		ids = append(ids, id)
	}

	cluster := view.resolve(ids)
	return fitMemoryBudget(cluster, cfg)
}

// planL1Promotion looks for an L1 run ready to promote to L2: once
// min_num_l1_files_to_compact non-overlapping L1 files exist, or their
// combined size already reaches max_desired_file_size, the oldest run (by
// Before()) is selected, extended to absorb any L2 file it would overlap
// (preserving invariant 2, L2 non-overlap), and compacted upward.
func planL1Promotion(view *View, cfg Config) (Action, bool) {
	l1s := view.Files(L1)
	if len(l1s) == 0 {
		return Action{}, false
	}
	if len(l1s) < cfg.MinNumL1FilesToCompact && view.TotalBytes(L1) < cfg.MaxDesiredFileSizeBytes {
		return Action{}, false
	}

	run := fitMemoryBudget(l1s, cfg)
	if len(run) == 0 {
		return Action{}, false
	}

	includedL2 := map[FileID]bool{}
	for _, l1 := range run {
		for _, l2ID := range view.OverlapsL2(l1.ID) {
			includedL2[l2ID] = true
		}
	}

	if len(includedL2) > 0 {
		ids := make([]FileID, 0, len(run)+len(includedL2))
		for _, f := range run {
			ids = append(ids, f.ID)
		}
		for id := range includedL2 {
			ids = append(ids, id)
		}
		run = fitMemoryBudget(view.resolve(ids), cfg)
		if len(run) == 0 {
			return Action{}, false
		}
	}

	return planSplit(run, L2, cfg), true
}

// fitMemoryBudget trims files (already sorted by Before()) from the newest
// end until total size and count fit memory_budget_bytes and
// max_num_files_per_plan, keeping the oldest files, since they are the ones
// most overdue for compaction. If the oldest file alone exceeds the budget,
// the result is empty.
func fitMemoryBudget(files []*File, cfg Config) []*File {
	if len(files) == 0 {
		return nil
	}

	limit := len(files)
	if limit > cfg.MaxNumFilesPerPlan {
		limit = cfg.MaxNumFilesPerPlan
	}

	var total int64
	kept := 0
	for kept < limit {
		if total+files[kept].SizeBytes > cfg.MemoryBudgetBytes {
			break
		}
		total += files[kept].SizeBytes
		kept++
	}

	return files[:kept]
}
