// Copyright (c) Sony Research Inc. All rights reserved.

package journal

import "sync"

const (
	defaultBaseDir  = "/tmp"
	defaultMaxSize  = 10 * 1024 * 1024 // 10MB
	defaultFilePerm = 0644
	defaultDirPerm  = 0755
)

// Record is one journaled device happening: a status change, an async
// runtime error, or an operational warning such as sustained back-pressure.
type Record struct {
	ID        string `json:"id"`
	Serial    string `json:"serial"`    // camera serial number
	Kind      string `json:"kind"`      // "status", "runtime_error", "backpressure"
	Message   string `json:"message"`   //
	Timestamp int64  `json:"timestamp"` // milliseconds
	Severity  int32  `json:"severity"`  // 0 info, 1 warning, 2 error
	Acked     bool   `json:"acked"`
	AckedAt   int64  `json:"acked_at"`
}

// Journal persists records to rotated JSON files with a per-file index for
// query pre-filtering. Reads mark returned records as pending-acked; the
// acks are flushed in bulk after a query.
type Journal struct {
	baseDir     string
	filePrefix  string
	maxFileSize int64

	currentFile  string
	currentMutex sync.Mutex

	indexMutex  sync.RWMutex
	fileIndexes map[string]*fileIndex

	pendingAcks *pendingAckManager
	fileLocks   *fileLockManager
}

// fileIndex accelerates queries by bounding what each file can contain.
type fileIndex struct {
	Path        string
	MinTime     int64
	MaxTime     int64
	MaxSeverity int32
	Kinds       map[string]bool
	AllAcked    bool
}

// Filter selects records on read.
type Filter struct {
	Since       int64 // milliseconds, inclusive
	Until       int64 // milliseconds, inclusive; 0 means now
	MinSeverity int32
	Kind        string
	Serial      string
	Unacked     bool
}
