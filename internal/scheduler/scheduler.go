package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns every recurring and one-shot job, keyed by a job id so
// they can be cancelled individually. It replaces the ambient job map the
// bot used to keep at module level; construct one and inject it.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	timers  map[string]*time.Timer
	stopped bool
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		timers:  make(map[string]*time.Timer),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels all jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// AddCron registers a recurring job under the key, replacing any existing
// job with the same key. The expression may carry a CRON_TZ= prefix.
func (s *Scheduler) AddCron(key, spec string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		s.cron.Remove(existing)
	}
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", key, err)
	}
	s.entries[key] = id
	return nil
}

// AddOneShot registers a job that fires once at the given time. Times in
// the past fire immediately.
func (s *Scheduler) AddOneShot(key string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel removes the cron job and/or timer registered under the key.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// Has reports whether a job is registered under the key.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, cronJob := s.entries[key]
	_, timer := s.timers[key]
	return cronJob || timer
}

// ValidateSpec checks a cron expression without registering anything.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
