package audit

import (
	"time"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

// ApplyOutcome returns the vendor trust state after a decision.
//
// An approval extends the success streak; a GRAY vendor with no rejection on
// record becomes STABLE once the streak reaches PromoteAfter. A rejection
// resets the streak and counts against the vendor; BlockAfter consecutive
// rejections block it.
func ApplyOutcome(t models.VendorTrust, approved bool, cfg rules.TrustRules, now time.Time) models.VendorTrust {
	if approved {
		t.ConsecutiveSuccess++
		t.ConsecutiveRejects = 0
		if t.Status == models.TrustGray && t.RejectCount == 0 && t.ConsecutiveSuccess >= cfg.PromoteAfter {
			t.Status = models.TrustStable
		}
	} else {
		t.ConsecutiveSuccess = 0
		t.RejectCount++
		t.ConsecutiveRejects++
		if t.ConsecutiveRejects >= cfg.BlockAfter {
			t.Status = models.TrustBlocked
		}
	}
	t.UpdatedAt = now
	return t
}
