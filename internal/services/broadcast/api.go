package broadcast

// Status returns a copy of the run's live status.
func (s *Service) Status(runID string) (RunStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[runID]
	if !ok || st == nil {
		return RunStatus{}, false
	}
	return *st, true
}

func (s *Service) trackStart(res Result) {
	s.pruneStatus(res.StartedAt)
	s.statusMu.Lock()
	s.status[res.RunID] = &RunStatus{
		RunID:     res.RunID,
		PostID:    res.PostID,
		Total:     res.Total,
		StartedAt: res.StartedAt,
		Running:   true,
	}
	s.statusMu.Unlock()
}

func (s *Service) trackProgress(runID string, processed, success, failed int) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[runID]; st != nil {
		st.Processed = processed
		st.Success = success
		st.Failed = failed
	}
}

func (s *Service) trackDone(runID string, err error) {
	now := s.now()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[runID]; st != nil {
		st.DoneAt = now
		st.Running = false
		if err != nil {
			st.Err = err.Error()
		}
	}
}
