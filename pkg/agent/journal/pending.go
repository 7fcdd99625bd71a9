// Copyright (c) Sony Research Inc. All rights reserved.

package journal

import "sync"

// fileLockManager hands out one mutex per journal file so bulk ack flushes
// to different files never serialize on each other.
type fileLockManager struct {
	locks map[string]*sync.Mutex
	mutex sync.Mutex
}

func newFileLockManager() *fileLockManager {
	return &fileLockManager{locks: make(map[string]*sync.Mutex)}
}

func (m *fileLockManager) get(path string) *sync.Mutex {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.locks[path]; !exists {
		m.locks[path] = &sync.Mutex{}
	}
	return m.locks[path]
}

type ack struct {
	AckedAt int64
}

// pendingAckManager batches ack marks per file until the next flush.
type pendingAckManager struct {
	acks  map[string]map[string]ack // file path -> record ID -> ack
	mutex sync.Mutex
}

func newPendingAckManager() *pendingAckManager {
	return &pendingAckManager{acks: make(map[string]map[string]ack)}
}

func (m *pendingAckManager) add(path, recordID string, a ack) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.acks[path]; !exists {
		m.acks[path] = make(map[string]ack)
	}
	m.acks[path][recordID] = a
}
