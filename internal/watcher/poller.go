package watcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voxscribe/voxscribe/internal/plaud"
	"github.com/voxscribe/voxscribe/internal/store"
)

// ConnTester is the subset of the Plaud client the poller needs.
type ConnTester interface {
	TestConnection(ctx context.Context) plaud.ConnResult
}

// Poller re-tests the Plaud connection on a fixed schedule and records API
// reachability for the settings page. It never downloads recordings on its
// own; processing starts from the UI or the watch directory.
type Poller struct {
	client ConnTester
	conn   *store.ConnStatusFile
	cron   *cron.Cron
}

func NewPoller(client ConnTester, conn *store.ConnStatusFile) *Poller {
	return &Poller{
		client: client,
		conn:   conn,
	}
}

// Start schedules polling at the given interval until Stop.
func (p *Poller) Start(interval time.Duration) error {
	if p.cron != nil {
		return fmt.Errorf("poller already started")
	}
	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		p.Poll(ctx)
	}); err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	c.Start()
	p.cron = c
	log.Printf("[watcher] polling Plaud every %s", interval)
	return nil
}

func (p *Poller) Stop() {
	if p.cron != nil {
		p.cron.Stop()
		p.cron = nil
	}
}

// Poll tests the connection once and writes the result to the status file.
func (p *Poller) Poll(ctx context.Context) {
	result := p.client.TestConnection(ctx)
	if !result.OK {
		log.Printf("[watcher] plaud connection check failed: %s", result.Message)
	}
	p.conn.Write(result.OK, result.Message)
}
