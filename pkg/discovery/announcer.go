package discovery

import (
	"context"
	"sync"
	"time"
)

// DefaultRetryInterval is the wait between registration attempts while
// an announcer's advertisement is down.
const DefaultRetryInterval = 30 * time.Second

// AnnouncerConfig adjusts how an Announcer drives its Advertiser. The
// zero value retries every 30 seconds.
type AnnouncerConfig struct {
	// RetryInterval is the wait between registration attempts after a
	// failed Advertise. Zero or negative selects DefaultRetryInterval.
	RetryInterval time.Duration
}

// Announcer keeps a daemon advertised. A registration that fails at
// boot, or an mDNS stack that comes up after the daemon, does not
// leave the daemon invisible: the announcer retries in the background
// until the registration sticks, and re-registers on demand when the
// advertised record changes.
type Announcer struct {
	adv   Advertiser
	retry time.Duration

	// regMu serializes registration attempts so a background retry
	// cannot overwrite a newer record from Update.
	regMu sync.Mutex

	mu     sync.Mutex
	info   *DaemonInfo
	up     bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAnnouncer returns an announcer that registers through adv.
func NewAnnouncer(adv Advertiser, config AnnouncerConfig) *Announcer {
	retry := config.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Announcer{adv: adv, retry: retry}
}

// Start advertises info and returns the first attempt's result. On
// failure the announcer keeps retrying in the background until the
// registration sticks or ctx ends, so callers can treat the error as
// a warning rather than a reason to give up on discovery.
func (an *Announcer) Start(ctx context.Context, info *DaemonInfo) error {
	an.mu.Lock()
	if an.cancel != nil {
		an.mu.Unlock()
		return ErrAlreadyAnnouncing
	}
	retryCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	an.info = info
	an.up = false
	an.ctx = retryCtx
	an.cancel = cancel
	an.done = done
	an.mu.Unlock()

	go an.retryLoop(retryCtx, done)
	return an.register()
}

// Update swaps in a fresh record and re-registers. An announcer that
// is not running ignores the update; Start carries its own record.
func (an *Announcer) Update(info *DaemonInfo) error {
	an.mu.Lock()
	if an.cancel == nil {
		an.mu.Unlock()
		return nil
	}
	an.info = info
	an.mu.Unlock()
	return an.register()
}

// Stop ends the retry loop and withdraws the advertisement. A stopped
// announcer may be started again.
func (an *Announcer) Stop() error {
	an.mu.Lock()
	cancel, done := an.cancel, an.done
	an.cancel = nil
	an.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return an.adv.Stop()
}

// register advertises the current record and tracks whether the
// registration is up. The staleness check keeps an attempt that raced
// with Update from recording the outcome of an outdated record.
func (an *Announcer) register() error {
	an.regMu.Lock()
	defer an.regMu.Unlock()

	an.mu.Lock()
	info, ctx := an.info, an.ctx
	an.mu.Unlock()
	if info == nil {
		return nil
	}

	err := an.adv.Advertise(ctx, info)

	an.mu.Lock()
	if an.info == info {
		an.up = err == nil
	}
	an.mu.Unlock()
	return err
}

// retryLoop re-registers on a timer whenever the advertisement is
// down. It idles while the registration is up.
func (an *Announcer) retryLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(an.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		an.mu.Lock()
		up := an.up
		an.mu.Unlock()
		if up {
			continue
		}
		_ = an.register()
	}
}
