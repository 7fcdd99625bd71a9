// Copyright (c) Sony Research Inc. All rights reserved.

// Package journal persists out-of-band device happenings (status changes,
// runtime errors, back-pressure warnings) so a client can inspect what a
// camera did while nobody was watching.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func New(baseDir, serial string, maxFileSize int64) (*Journal, error) {
	if baseDir == "" {
		baseDir = getBaseDir()
	}
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxSize
	}

	if err := os.MkdirAll(baseDir, defaultDirPerm); err != nil {
		return nil, err
	}

	j := &Journal{
		baseDir:     baseDir,
		maxFileSize: maxFileSize,
		fileIndexes: make(map[string]*fileIndex),
		pendingAcks: newPendingAckManager(),
		fileLocks:   newFileLockManager(),
		filePrefix:  "cam" + serial + "_journal_",
	}

	if err := j.initialize(); err != nil {
		return nil, err
	}
	return j, nil
}

func getBaseDir() string {
	if workDir := os.Getenv("WORK_DIR"); workDir != "" {
		return workDir
	}
	return defaultBaseDir
}

func (j *Journal) initialize() error {
	// Rebuild the index from whatever previous runs left behind.
	files, err := os.ReadDir(j.baseDir)
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" || !strings.Contains(file.Name(), j.filePrefix) {
			continue
		}
		path := filepath.Join(j.baseDir, file.Name())
		if err := j.indexFile(path); err != nil {
			logger.Logger.Info("journal indexing failed", zap.String("path", path), zap.Error(err))
		}
	}
	return j.rotate()
}

func (j *Journal) rotate() error {
	j.currentMutex.Lock()
	defer j.currentMutex.Unlock()
	return j.rotateLocked()
}

// rotateLocked starts a fresh journal file. Caller holds currentMutex.
func (j *Journal) rotateLocked() error {
	name := j.filePrefix + time.Now().Format("20060102") + "_" + uuid.New().String()[:8] + ".json"
	j.currentFile = filepath.Join(j.baseDir, name)

	file, err := os.OpenFile(j.currentFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(`{"records":[]}`)
	return err
}

type fileContent struct {
	Records []Record `json:"records"`
}

// Append writes one record, rotating the current file when it outgrows the
// size cap. Missing ID and timestamp fields are filled in.
func (j *Journal) Append(rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	if rec.Kind == "" {
		rec.Kind = "status"
	}

	j.currentMutex.Lock()
	defer j.currentMutex.Unlock()

	data, err := os.ReadFile(j.currentFile)
	if err != nil {
		return "", err
	}
	var content fileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return "", err
	}

	if len(data) > int(j.maxFileSize) {
		if err := j.rotateLocked(); err != nil {
			return "", err
		}
		content = fileContent{}
	}

	content.Records = append(content.Records, rec)
	newData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(j.currentFile, newData, defaultFilePerm); err != nil {
		return "", err
	}

	j.updateIndex(j.currentFile, rec)
	return j.currentFile, nil
}

func (j *Journal) updateIndex(path string, rec Record) {
	j.indexMutex.Lock()
	defer j.indexMutex.Unlock()

	if idx, ok := j.fileIndexes[path]; ok {
		if rec.Timestamp < idx.MinTime {
			idx.MinTime = rec.Timestamp
		}
		if rec.Timestamp > idx.MaxTime {
			idx.MaxTime = rec.Timestamp
		}
		if rec.Severity > idx.MaxSeverity {
			idx.MaxSeverity = rec.Severity
		}
		idx.AllAcked = false
		idx.Kinds[rec.Kind] = true
		return
	}
	j.fileIndexes[path] = &fileIndex{
		Path:        path,
		MinTime:     rec.Timestamp,
		MaxTime:     rec.Timestamp,
		MaxSeverity: rec.Severity,
		Kinds:       map[string]bool{rec.Kind: true},
	}
}

func (j *Journal) indexFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var content fileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return err
	}
	if len(content.Records) == 0 {
		return nil
	}

	idx := &fileIndex{
		Path:    path,
		MinTime: content.Records[0].Timestamp,
		MaxTime: content.Records[0].Timestamp,
		Kinds:   make(map[string]bool),
	}
	hasUnacked := false
	for _, rec := range content.Records {
		if rec.Timestamp < idx.MinTime {
			idx.MinTime = rec.Timestamp
		}
		if rec.Timestamp > idx.MaxTime {
			idx.MaxTime = rec.Timestamp
		}
		if rec.Severity > idx.MaxSeverity {
			idx.MaxSeverity = rec.Severity
		}
		if !rec.Acked {
			hasUnacked = true
		}
		idx.Kinds[rec.Kind] = true
	}
	idx.AllAcked = !hasUnacked

	j.indexMutex.Lock()
	j.fileIndexes[path] = idx
	j.indexMutex.Unlock()
	return nil
}

// Query returns matching records newest first. Returned records are marked
// as pending-acked and the acks flushed before returning, so a follow-up
// Unacked query only sees what arrived in between.
func (j *Journal) Query(filter Filter) ([]Record, error) {
	if filter.Until == 0 {
		filter.Until = time.Now().UnixMilli()
	}

	var all []Record
	for _, path := range j.candidateFiles(filter) {
		recs, err := j.loadFile(path, filter)
		if err != nil {
			logger.Logger.Info("journal file load failed", zap.String("path", path), zap.Error(err))
			continue
		}
		all = append(all, recs...)
	}

	sort.Slice(all, func(i, k int) bool {
		return all[i].Timestamp > all[k].Timestamp
	})

	if err := j.flushAcks(); err != nil {
		logger.Logger.Error("flushing journal acks", zap.Error(err))
		return nil, fmt.Errorf("flushing journal acks: %w", err)
	}
	return all, nil
}

func (j *Journal) candidateFiles(filter Filter) []string {
	j.indexMutex.RLock()
	defer j.indexMutex.RUnlock()

	var candidates []string
	for path, idx := range j.fileIndexes {
		if idx.MaxTime < filter.Since || idx.MinTime > filter.Until {
			continue
		}
		if idx.MaxSeverity < filter.MinSeverity {
			continue
		}
		if filter.Kind != "" && !idx.Kinds[filter.Kind] {
			continue
		}
		if filter.Unacked && idx.AllAcked {
			continue
		}
		candidates = append(candidates, path)
	}
	return candidates
}

func (j *Journal) loadFile(path string, filter Filter) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var content fileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, err
	}

	var matched []Record
	for _, rec := range content.Records {
		if rec.Timestamp < filter.Since || rec.Timestamp > filter.Until {
			continue
		}
		if rec.Severity < filter.MinSeverity {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Serial != "" && rec.Serial != filter.Serial {
			continue
		}
		if filter.Unacked && rec.Acked {
			continue
		}
		j.pendingAcks.add(path, rec.ID, ack{AckedAt: time.Now().UnixMilli()})
		matched = append(matched, rec)
	}
	return matched, nil
}

func (j *Journal) flushAcks() error {
	j.pendingAcks.mutex.Lock()
	defer j.pendingAcks.mutex.Unlock()

	for path, fileAcks := range j.pendingAcks.acks {
		if len(fileAcks) == 0 {
			continue
		}
		if err := j.applyFileAcks(path, fileAcks); err != nil {
			logger.Logger.Error("applying journal acks", zap.String("path", path), zap.Error(err))
		}
		delete(j.pendingAcks.acks, path)
	}
	return nil
}

func (j *Journal) applyFileAcks(path string, fileAcks map[string]ack) error {
	lock := j.fileLocks.get(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var content fileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", path, err)
	}

	updated := false
	for i := range content.Records {
		if a, exists := fileAcks[content.Records[i].ID]; exists {
			content.Records[i].Acked = true
			content.Records[i].AckedAt = a.AckedAt
			updated = true
		}
	}
	if !updated {
		return nil
	}

	newData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling acked content: %w", err)
	}
	if err := os.WriteFile(path, newData, defaultFilePerm); err != nil {
		return fmt.Errorf("writing acked file: %w", err)
	}
	if err := j.indexFile(path); err != nil {
		logger.Logger.Info("reindexing after ack failed", zap.String("path", path), zap.Error(err))
	}
	return nil
}
