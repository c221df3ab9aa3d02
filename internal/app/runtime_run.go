package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

// Run binds the notification listener and verifies the bot token before
// anything is served, then supervises every component until ctx is done or
// one of them fails.
func (r *Runtime) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen notification server on %s: %w", r.httpServer.Addr, err)
	}
	if err := r.telegram.Listen(); err != nil {
		listener.Close()
		return err
	}
	username, err := r.telegram.Verify(ctx)
	if err != nil {
		listener.Close()
		r.telegram.CloseListener()
		return fmt.Errorf("verify telegram bot: %w", err)
	}
	r.logger.Info("telegram-relay runtime starting",
		"bot_username", username,
		"telegram_mode", r.telegram.Mode(),
		"notification_addr", listener.Addr().String(),
		"notification_targets", len(r.cfg.NotificationTargets()),
	)
	r.heartbeat.Beat("runtime", "runtime loop started")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ticker := time.NewTicker(r.beatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				r.heartbeat.Beat("runtime", "running")
			}
		}
	})

	// The pool outlives the connector so updates accepted before shutdown still get answered.
	poolCtx, stopPool := context.WithCancel(context.WithoutCancel(ctx))
	connectorDone := make(chan struct{})
	group.Go(func() error {
		return runMonitored(poolCtx, r.heartbeat, "dispatch", r.beatEvery, func(runCtx context.Context) error {
			return r.pool.Start(runCtx)
		})
	})
	group.Go(func() error {
		<-groupCtx.Done()
		<-connectorDone
		stopPool()
		return nil
	})
	group.Go(func() error {
		defer close(connectorDone)
		return r.telegram.Start(groupCtx)
	})
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, "api", r.beatEvery, func(runCtx context.Context) error {
			err := r.httpServer.Serve(listener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return r.heartbeatMonitor.Start(groupCtx)
	})
	if r.watcher != nil {
		// A watcher failure only stops prompt reloads.
		group.Go(func() error {
			err := runMonitored(groupCtx, r.heartbeat, "watcher", r.beatEvery, func(runCtx context.Context) error {
				return r.watcher.Start(runCtx)
			})
			if err != nil {
				r.logger.Error("prompt watcher stopped", "error", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return r.scheduler.Start(groupCtx)
	})

	err = group.Wait()
	r.heartbeat.Stopped("runtime", "runtime loop stopped")
	r.logger.Info("telegram-relay runtime stopped")
	return err
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	if run == nil {
		return nil
	}
	if reporter != nil {
		reporter.Starting(component, "starting")
		reporter.Beat(component, "running")
	}

	var stopHeartbeat func()
	if reporter != nil && beatInterval > 0 {
		heartbeatCtx, cancel := context.WithCancel(ctx)
		stopHeartbeat = cancel
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-heartbeatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	if reporter == nil {
		return err
	}
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
