package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// GroupResult summarises one grouping sweep.
type GroupResult struct {
	Drafts   int
	Groups   int
	Assigned int
}

// GroupSweep clusters unmatched drafts into correlation groups. Two drafts
// belong together when they share a vendor and were created within
// GroupWindow of each other (transitively), or carry the same reference
// fingerprint. A cluster that
// already has a group id keeps it and new members join that group. Re-running
// the sweep assigns nothing new.
func (e *Engine) GroupSweep(ctx context.Context) (GroupResult, error) {
	started := e.now()

	drafts, err := e.ledger.UnmatchedDrafts(ctx)
	if err != nil {
		return GroupResult{}, fmt.Errorf("failed to load unmatched drafts: %w", err)
	}
	result := GroupResult{Drafts: len(drafts)}

	for _, cluster := range clusters(drafts, e.cfg) {
		groupID := ""
		var ungrouped []string
		for _, v := range cluster {
			if v.GroupID != "" && groupID == "" {
				groupID = v.GroupID
			}
			if v.GroupID == "" {
				ungrouped = append(ungrouped, v.ID)
			}
		}
		if len(ungrouped) == 0 {
			continue
		}
		if groupID == "" {
			groupID = uuid.NewString()
		}

		n, err := e.ledger.AssignGroup(ctx, groupID, ungrouped)
		if err != nil {
			return result, fmt.Errorf("failed to assign group %s: %w", groupID, err)
		}
		if n > 0 {
			result.Groups++
			result.Assigned += n
			e.logger.Debug("Correlation group assigned", "group_id", groupID, "members", len(cluster), "assigned", n)
		}
	}

	e.logger.Info("Group sweep finished",
		"drafts", result.Drafts,
		"groups", result.Groups,
		"assigned", result.Assigned,
	)

	e.record(ctx, db.SweepRecord{
		Kind:       db.SweepGroup,
		StartedAt:  started,
		FinishedAt: e.now(),
		Processed:  result.Drafts,
		Detail:     fmt.Sprintf("groups=%d assigned=%d", result.Groups, result.Assigned),
	})
	return result, nil
}

// clusters returns the connected components of size two or more, each in
// creation order.
func clusters(drafts []models.Voucher, cfg Config) [][]models.Voucher {
	sorted := make([]models.Voucher, len(drafts))
	copy(sorted, drafts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	uf := newUnionFind(len(sorted))
	byFingerprint := map[string]int{}
	lastByVendor := map[string]int{}
	for i, v := range sorted {
		vendor := models.NormalizeVendor(v.Vendor)
		if prev, ok := lastByVendor[vendor]; ok && cfg.GroupWindow > 0 &&
			v.CreatedAt.Sub(sorted[prev].CreatedAt) <= cfg.GroupWindow {
			uf.union(prev, i)
		}
		lastByVendor[vendor] = i

		if v.Fingerprint == "" {
			continue
		}
		if first, ok := byFingerprint[v.Fingerprint]; ok {
			uf.union(first, i)
		} else {
			byFingerprint[v.Fingerprint] = i
		}
	}

	components := map[int][]models.Voucher{}
	var roots []int
	for i, v := range sorted {
		root := uf.find(i)
		if _, seen := components[root]; !seen {
			roots = append(roots, root)
		}
		components[root] = append(components[root], v)
	}

	var out [][]models.Voucher
	for _, root := range roots {
		if len(components[root]) > 1 {
			out = append(out, components[root])
		}
	}
	return out
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
