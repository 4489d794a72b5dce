// Package scheduler 提供定时任务调度功能，使用 gocron/v2 库.
// 任务以单例模式运行：上一轮未结束时跳过新一轮，停止时等待在途任务完成.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bizzlechizzle/aupat/pkg/log"
)

// JobStatus 表示任务的状态类型.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled" // 任务已调度
	StatusRunning   JobStatus = "running"   // 任务正在运行
	StatusError     JobStatus = "error"     // 上一轮出错
)

// JobFunc 任务函数. ctx 在调度器停止时取消.
type JobFunc func(ctx context.Context) error

// JobInfo 表示定时任务的信息，用于可视化和监控.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CronExpr    string    `json:"cron_expr,omitempty"`
	Interval    string    `json:"interval,omitempty"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Runs        int64     `json:"runs"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Scheduler 是定时任务调度器的实现.
type Scheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job // 以任务名称为键
	jobInfos  map[string]*JobInfo   // 以任务名称为键
	mu        sync.RWMutex
	logger    *zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler 创建一个新的 Scheduler 实例.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		jobInfos:  make(map[string]*JobInfo),
		logger:    log.Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// AddCron 添加一个基于 cron 表达式的定时任务.
func (s *Scheduler) AddCron(name, cronExpr string, job JobFunc) error {
	return s.add(name, gocron.CronJob(cronExpr, false), &JobInfo{CronExpr: cronExpr}, job)
}

// AddInterval 添加一个固定间隔的任务. immediate 为 true 时启动后立即执行一次.
func (s *Scheduler) AddInterval(name string, every time.Duration, immediate bool, job JobFunc) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	opts := []gocron.JobOption{}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	return s.add(name, gocron.DurationJob(every), &JobInfo{Interval: every.String()}, job, opts...)
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, info *JobInfo, job JobFunc, extra ...gocron.JobOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job with name %s already exists", name)
	}

	opts := append([]gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}, extra...)

	j, err := s.scheduler.NewJob(def, gocron.NewTask(s.wrap(name, job)), opts...)
	if err != nil {
		return err
	}

	now := time.Now()
	nextRun, _ := j.NextRun()

	info.ID = j.ID().String()
	info.Name = name
	info.NextRun = nextRun
	info.Status = StatusScheduled
	info.CreatedAt = now
	info.UpdatedAt = now

	s.jobs[name] = j
	s.jobInfos[name] = info

	s.logger.Info().Str("job", name).Str("cron", info.CronExpr).Str("every", info.Interval).Msg("added job")

	return nil
}

// wrap 记录执行状态并吞掉 panic.
func (s *Scheduler) wrap(name string, job JobFunc) func() {
	return func() {
		s.setStatus(name, StatusRunning, nil)

		var err error

		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in job: %v", r)
				}
			}()

			err = job(s.ctx)
		}()

		if err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("job failed")
		}

		s.setStatus(name, StatusScheduled, err)
	}
}

func (s *Scheduler) setStatus(name string, status JobStatus, jobErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.jobInfos[name]
	if !ok {
		return
	}

	now := time.Now()
	info.UpdatedAt = now

	if status == StatusRunning {
		info.Status = StatusRunning
		info.LastRun = now

		return
	}

	info.Runs++

	if jobErr != nil {
		info.Status = StatusError
		info.Error = jobErr.Error()
	} else {
		info.Status = StatusScheduled
		info.Error = ""
		info.LastSuccess = now
	}

	if j, ok := s.jobs[name]; ok {
		if next, err := j.NextRun(); err == nil {
			info.NextRun = next
		}
	}
}

// RunNow 立即触发一次任务（仍受单例模式约束）.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("job with name %s does not exist", name)
	}

	return j.RunNow()
}

// RemoveJobByName 通过名称移除任务.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job with name %s does not exist", name)
	}

	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		return err
	}

	delete(s.jobs, name)
	delete(s.jobInfos, name)

	return nil
}

// GetJobInfoByName 通过名称获取任务信息副本.
func (s *Scheduler) GetJobInfoByName(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.jobInfos[name]
	if !exists {
		return JobInfo{}, fmt.Errorf("job with name %s does not exist", name)
	}

	return *info, nil
}

// GetJobInfos 返回所有定时任务的信息（按名称排序），用于可视化和监控.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]JobInfo, 0, len(s.jobInfos))
	for _, info := range s.jobInfos {
		jobs = append(jobs, *info)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	return jobs
}

// JobID 返回任务 ID.
func (s *Scheduler) JobID(name string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[name]
	if !ok {
		return uuid.Nil, false
	}

	return j.ID(), true
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("starting scheduler")
	s.scheduler.Start()
}

// Stop 停止调度器，等待在途任务结束.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("stopping scheduler")
	s.cancel()

	return s.scheduler.Shutdown()
}
