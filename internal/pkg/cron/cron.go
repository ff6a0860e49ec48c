package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/cake_billing_server/config"
	"github.com/qs3c/cake_billing_server/internal/model/dto"
	"github.com/qs3c/cake_billing_server/internal/pkg/apperror"
	"github.com/qs3c/cake_billing_server/internal/service"
)

// Sweeper 周期扣款扫描
type Sweeper interface {
	Sweep(ctx context.Context, opts service.SweepOptions) (*dto.SweepSummary, error)
}

// Poller 轮询长时间未回调的支付
type Poller interface {
	PollStale(ctx context.Context) (int, error)
}

type Service struct {
	sweeper Sweeper
	poller  Poller
	cfg     config.BillingConfig
	log     logrus.FieldLogger

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func NewService(sweeper Sweeper, poller Poller, cfg config.BillingConfig, log logrus.FieldLogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		sweeper: sweeper,
		poller:  poller,
		cfg:     cfg.Defaults(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 注册扫描与轮询任务并启动调度，上一次还在跑时跳过本次
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	logger := cron.PrintfLogger(s.log)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(s.cfg.SweepSchedule, s.runSweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}
	if s.poller != nil {
		if _, err := c.AddFunc(s.cfg.PollSchedule, s.runPoll); err != nil {
			return fmt.Errorf("invalid poll schedule %q: %w", s.cfg.PollSchedule, err)
		}
	}

	c.Start()
	s.cron = c
	s.started = true

	s.log.WithFields(logrus.Fields{
		"sweep_schedule": s.cfg.SweepSchedule,
		"poll_schedule":  s.cfg.PollSchedule,
	}).Info("cron service started")
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	s.log.Info("cron service stopped")
}

func (s *Service) runSweep() {
	if _, err := s.RunSweepNow(s.ctx); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.log.Info("billing sweep already running elsewhere, skipped")
			return
		}
		s.log.WithError(err).Error("scheduled billing sweep failed")
	}
}

func (s *Service) runPoll() {
	if _, err := s.poller.PollStale(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.WithError(err).Error("scheduled payment poll failed")
	}
}

// RunSweepNow 立即执行一次扫描
func (s *Service) RunSweepNow(ctx context.Context) (*dto.SweepSummary, error) {
	return s.sweeper.Sweep(ctx, service.SweepOptions{})
}

// RunPollNow 立即轮询一次
func (s *Service) RunPollNow(ctx context.Context) (int, error) {
	if s.poller == nil {
		return 0, nil
	}
	return s.poller.PollStale(ctx)
}
