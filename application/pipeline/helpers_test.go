package pipeline

import (
	"context"
	"image"
	"sync"
	"time"

	"veridoc.io/entities"
)

type fakeDetector struct {
	detections map[string][]Detection
	err        error
}

func (f *fakeDetector) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detections[imagePath], nil
}

type fakeRecognizer struct {
	readFn       func(imagePath string, opts OCROptions) ([]TextFragment, error)
	readRegionFn func(imagePath string, region image.Rectangle, opts OCROptions) ([]TextFragment, error)
}

func (f *fakeRecognizer) Read(ctx context.Context, imagePath string, opts OCROptions) ([]TextFragment, error) {
	return f.readFn(imagePath, opts)
}

func (f *fakeRecognizer) ReadRegion(ctx context.Context, imagePath string, region image.Rectangle, opts OCROptions) ([]TextFragment, error) {
	return f.readRegionFn(imagePath, region, opts)
}

type fakeLandmarker struct {
	sets map[string][]LandmarkSet
	err  error
}

func (f *fakeLandmarker) Locate(ctx context.Context, imagePath string) ([]LandmarkSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sets[imagePath], nil
}

// fakeEncoder returns scripted responses in call order.
type fakeEncoder struct {
	responses [][][]float32
	errs      []error
	calls     int
}

func (f *fakeEncoder) Encode(ctx context.Context, imagePath string) ([][]float32, error) {
	index := f.calls
	f.calls++
	if index < len(f.errs) && f.errs[index] != nil {
		return nil, f.errs[index]
	}
	if index < len(f.responses) {
		return f.responses[index], nil
	}
	return nil, nil
}

type fakeExtractor struct {
	data []byte
	err  error
}

func (f *fakeExtractor) ExtractLargestFace(ctx context.Context, imagePath string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type memoryRecords struct {
	mu        sync.Mutex
	existing  map[string]bool
	inserted  []entities.DocumentRecord
	duplicate bool
	err       error
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{existing: map[string]bool{}}
}

func (m *memoryRecords) ExistsBy(field string, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.existing[field+":"+digest], nil
}

func (m *memoryRecords) Insert(ctx context.Context, record entities.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.duplicate {
		return ErrDuplicateRecord
	}
	m.inserted = append(m.inserted, record)
	m.existing["hashedPrimaryID:"+record.HashedPrimaryID] = true
	m.existing["hashedCompareID:"+record.HashedCompareID] = true
	return nil
}

type memoryAssets struct {
	mu      sync.Mutex
	files   map[string][]byte
	deletes int
}

func newMemoryAssets() *memoryAssets {
	return &memoryAssets{files: map[string][]byte{}}
}

func (m *memoryAssets) SaveFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

func (m *memoryAssets) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, ErrNoFaceFound
	}
	return data, nil
}

func (m *memoryAssets) CheckFileExists(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *memoryAssets) DeleteFile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	m.deletes++
	return nil
}

func (m *memoryAssets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]string{}}
}

func (m *memoryCache) CreateEntry(key string, payload interface{}, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := payload.(string)
	if !ok {
		return false
	}
	m.entries[key] = value
	return true
}

func (m *memoryCache) FindOne(key string) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return nil
	}
	return &value
}

func (m *memoryCache) DeleteOne(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return true
}
