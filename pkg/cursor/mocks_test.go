package cursor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/source"
)

func hashOf(fork string, n uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d", fork, n)))
}

// fakeSource is an in-memory upstream chain.
type fakeSource struct {
	mu          sync.Mutex
	blocks      map[uint64]*model.RawBlock
	head        uint64
	blockAtErrs []error
	blockAtCall int
}

func newFakeSource() *fakeSource {
	return &fakeSource{blocks: make(map[uint64]*model.RawBlock)}
}

// extend replaces heights from..to with blocks of the given fork, linked to
// whatever block sits at from-1, and drops everything above to.
func (f *fakeSource) extend(fork string, from, to uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for n := from; n <= to; n++ {
		var parent common.Hash
		if p, ok := f.blocks[n-1]; ok {
			parent = p.Hash
		}
		f.blocks[n] = &model.RawBlock{Number: n, Hash: hashOf(fork, n), ParentHash: parent}
	}
	for n := range f.blocks {
		if n > to {
			delete(f.blocks, n)
		}
	}
	f.head = to
}

func (f *fakeSource) LatestHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) BlockAt(_ context.Context, height uint64) (*model.RawBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockAtCall++
	if len(f.blockAtErrs) > 0 {
		err := f.blockAtErrs[0]
		f.blockAtErrs = f.blockAtErrs[1:]
		return nil, err
	}
	b, ok := f.blocks[height]
	if !ok {
		return nil, source.ErrBlockNotFound
	}
	return b, nil
}

func (f *fakeSource) HashAt(_ context.Context, height uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[height]
	if !ok {
		return common.Hash{}, source.ErrBlockNotFound
	}
	return b.Hash, nil
}

// memStore plays both the committed store and the writer.
type memStore struct {
	mu        sync.Mutex
	hashes    map[uint64]string
	parents   map[uint64]string
	tip       uint64
	writes    []uint64
	rollbacks []uint64
	failAt    map[uint64]error
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[uint64]string),
		parents: make(map[uint64]string),
		failAt:  make(map[uint64]error),
	}
}

func (m *memStore) LastIndexedBlock(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

func (m *memStore) BlockHash(_ context.Context, height uint64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[height]
	return h, ok, nil
}

func (m *memStore) Write(_ context.Context, raw *model.RawBlock) (*model.BlockBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failAt[raw.Number]; err != nil {
		return nil, err
	}
	if h, ok := m.hashes[raw.Number]; ok && h != raw.Hash.Hex() {
		return nil, fmt.Errorf("conflicting block at %d", raw.Number)
	}
	m.hashes[raw.Number] = raw.Hash.Hex()
	m.parents[raw.Number] = raw.ParentHash.Hex()
	m.writes = append(m.writes, raw.Number)
	if raw.Number > m.tip {
		m.tip = raw.Number
	}
	return &model.BlockBundle{}, nil
}

func (m *memStore) Rollback(_ context.Context, ancestor uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for n := range m.hashes {
		if n > ancestor {
			delete(m.hashes, n)
			delete(m.parents, n)
			removed++
		}
	}
	m.tip = ancestor
	m.rollbacks = append(m.rollbacks, ancestor)
	return removed, nil
}
