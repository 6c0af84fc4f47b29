package scheduler

import (
	"math/rand"
	"time"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// blockedCooldown is the base delay after the site signals blocking.
// Hammering a 429 just extends the block.
const blockedCooldown = 2 * time.Minute

// kindClassifier maps the failure taxonomy to retry decisions
type kindClassifier struct {
	config *common.SchedulerConfig
}

func newClassifier(config *common.SchedulerConfig) interfaces.ErrorClassifier {
	return &kindClassifier{config: config}
}

// Classify decides how the scheduler responds to a failed attempt. The
// retry budget check happens before kind dispatch so an exhausted task is
// skipped regardless of how recoverable its last error looks.
func (c *kindClassifier) Classify(err error, task *models.CrawlTask, retries int) interfaces.Classification {
	kind := common.KindOf(err)

	if kind == common.ErrKindValidation {
		return interfaces.Classification{
			Decision: interfaces.DecisionAbort,
			Reason:   "malformed task",
		}
	}

	if retries >= task.EffectiveMaxRetries(c.config.MaxRetries) {
		return interfaces.Classification{
			Decision: interfaces.DecisionSkip,
			Reason:   "retry budget exhausted",
		}
	}

	switch kind {
	case common.ErrKindTransientNetwork, common.ErrKindUnknown:
		return interfaces.Classification{
			Decision: interfaces.DecisionRetry,
			Delay:    c.backoff(retries),
			Reason:   string(kind),
		}

	case common.ErrKindBrowserCrash:
		// A fresh browser instance usually clears it, no point waiting long
		return interfaces.Classification{
			Decision: interfaces.DecisionRetry,
			Delay:    c.config.RetryBaseDelay,
			Reason:   string(kind),
		}

	case common.ErrKindAccessBlocked:
		return interfaces.Classification{
			Decision: interfaces.DecisionRetry,
			Delay:    blockedCooldown + c.backoff(retries),
			Reason:   string(kind),
		}

	case common.ErrKindStructuralMismatch, common.ErrKindParseFailure:
		return interfaces.Classification{
			Decision: interfaces.DecisionSkip,
			Reason:   string(kind),
		}
	}

	return interfaces.Classification{
		Decision: interfaces.DecisionRetry,
		Delay:    c.backoff(retries),
		Reason:   string(kind),
	}
}

// backoff is exponential from the base delay, capped, with up to 25% jitter
// so retried tasks do not hit the site in lockstep
func (c *kindClassifier) backoff(retries int) time.Duration {
	delay := c.config.RetryBaseDelay
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay >= c.config.RetryMaxDelay {
			delay = c.config.RetryMaxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
