// Package memory provides in-memory implementations of the storage
// interfaces for tests and single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"ammdesk/internal/model"
)

// Stores bundles every in-memory store over one mutex.
type Stores struct {
	mu         sync.Mutex
	pools      map[string]model.Pool
	farms      map[string]model.Farm
	positions  map[string]model.FarmPosition // keyed farmID|userID
	operations map[string]model.LiquidityOperation
	opOrder    []string
}

func New() *Stores {
	return &Stores{
		pools:      make(map[string]model.Pool),
		farms:      make(map[string]model.Farm),
		positions:  make(map[string]model.FarmPosition),
		operations: make(map[string]model.LiquidityOperation),
	}
}

func positionKey(farmID, userID string) string {
	return farmID + "|" + userID
}

func (s *Stores) GetPool(_ context.Context, address string) (*model.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[address]
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

func (s *Stores) GetPoolByTokens(_ context.Context, token0, token1 string) (*model.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pool := range s.pools {
		if (pool.Token0 == token0 && pool.Token1 == token1) ||
			(pool.Token0 == token1 && pool.Token1 == token0) {
			p := pool
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Stores) UpsertPool(_ context.Context, pool model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool.Address] = pool
	return nil
}

func (s *Stores) GetFarm(_ context.Context, id string) (*model.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	farm, ok := s.farms[id]
	if !ok {
		return nil, nil
	}
	return &farm, nil
}

func (s *Stores) GetFarmByPool(_ context.Context, poolID string) (*model.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, farm := range s.farms {
		if farm.PoolID == poolID {
			f := farm
			return &f, nil
		}
	}
	return nil, nil
}

func (s *Stores) ListFarms(_ context.Context) ([]model.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	farms := make([]model.Farm, 0, len(s.farms))
	for _, farm := range s.farms {
		farms = append(farms, farm)
	}
	sort.Slice(farms, func(i, j int) bool { return farms[i].StartsAt.Before(farms[j].StartsAt) })
	return farms, nil
}

func (s *Stores) InsertFarm(_ context.Context, farm model.Farm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.farms[farm.ID] = farm
	return nil
}

func (s *Stores) UpdateFarm(_ context.Context, farm model.Farm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.farms[farm.ID]
	if !ok {
		s.farms[farm.ID] = farm
		return nil
	}
	// total staked moves only through AddTotalStaked
	farm.TotalStaked = existing.TotalStaked
	s.farms[farm.ID] = farm
	return nil
}

func (s *Stores) AddTotalStaked(_ context.Context, farmID string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	farm, ok := s.farms[farmID]
	if !ok {
		return nil
	}
	farm.TotalStaked += delta
	if farm.TotalStaked < 0 {
		farm.TotalStaked = 0
	}
	s.farms[farmID] = farm
	return nil
}

func (s *Stores) GetPosition(_ context.Context, farmID, userID string) (*model.FarmPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionKey(farmID, userID)]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

func (s *Stores) ListPositionsByUser(_ context.Context, userID string) ([]model.FarmPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var positions []model.FarmPosition
	for _, pos := range s.positions {
		if pos.UserID == userID {
			positions = append(positions, pos)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (s *Stores) UpsertPosition(_ context.Context, pos model.FarmPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey(pos.FarmID, pos.UserID)] = pos
	return nil
}

func (s *Stores) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, pos := range s.positions {
		if pos.ID == id {
			delete(s.positions, key)
			return nil
		}
	}
	return nil
}

func (s *Stores) GetOperation(_ context.Context, id string) (*model.LiquidityOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[id]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (s *Stores) ListOperationsByUser(_ context.Context, userAddress string, limit int) ([]model.LiquidityOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var ops []model.LiquidityOperation
	for i := len(s.opOrder) - 1; i >= 0 && len(ops) < limit; i-- {
		op := s.operations[s.opOrder[i]]
		if op.UserAddress == userAddress {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (s *Stores) ListPendingOperations(_ context.Context) ([]model.LiquidityOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []model.LiquidityOperation
	for _, id := range s.opOrder {
		op := s.operations[id]
		if op.Status == model.StatusPending {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (s *Stores) InsertOperation(_ context.Context, op model.LiquidityOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[op.ID]; !ok {
		s.opOrder = append(s.opOrder, op.ID)
	}
	s.operations[op.ID] = op
	return nil
}

func (s *Stores) UpdateOperation(_ context.Context, op model.LiquidityOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[op.ID] = op
	return nil
}
