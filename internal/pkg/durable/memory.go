package durable

import (
	"sync"

	"github.com/qs3c/subtrack_server/internal/model"
)

// MemoryStore 内存版 StepStore，用于测试和本地调试
type MemoryStore struct {
	mu    sync.Mutex
	steps map[string]map[stepKey]model.WorkflowStep
	seq   int64
}

type stepKey struct {
	label string
	kind  string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{steps: make(map[string]map[stepKey]model.WorkflowStep)}
}

func (s *MemoryStore) GetStep(runID, label, kind string) (*model.WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.steps[runID][stepKey{label, kind}]
	if !ok {
		return nil, nil
	}
	return &step, nil
}

func (s *MemoryStore) SaveStep(step *model.WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.steps[step.RunID]
	if !ok {
		run = make(map[stepKey]model.WorkflowStep)
		s.steps[step.RunID] = run
	}
	key := stepKey{step.Label, step.Kind}
	if existing, ok := run[key]; ok {
		step.ID = existing.ID
	} else {
		s.seq++
		step.ID = s.seq
	}
	run[key] = *step
	return nil
}

// Steps 返回某次运行的全部步骤记录
func (s *MemoryStore) Steps(runID string) []model.WorkflowStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.WorkflowStep, 0, len(s.steps[runID]))
	for _, step := range s.steps[runID] {
		out = append(out, step)
	}
	return out
}
