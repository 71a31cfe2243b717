package rag

import "time"

func (sm *SourceManager) SetClock(now func() time.Time) {
	sm.now = now
}
