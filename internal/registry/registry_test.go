package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()

	reg, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func insertSession(t *testing.T, reg *Registry, projectRoot, id string) *Session {
	t.Helper()

	s := &Session{
		ID:          id,
		ProjectRoot: projectRoot,
		Dir:         filepath.Join(projectRoot, ".lanes", id),
		Branch:      "lanes/" + id,
		Mode:        ModeNative,
	}
	require.NoError(t, reg.Insert(context.Background(), s))
	return s
}

func TestInsertAndFindActive(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	assert.NotZero(t, s.Row)

	found, err := reg.FindActive(ctx, "/proj", "001")
	require.NoError(t, err)
	assert.Equal(t, s.Row, found.Row)
	assert.Equal(t, "/proj/.lanes/001", found.Dir)
	assert.Equal(t, "lanes/001", found.Branch)
	assert.Equal(t, ModeNative, found.Mode)
	assert.False(t, found.InPlace)
	assert.True(t, found.Active())
	assert.WithinDuration(t, s.CreatedAt, found.CreatedAt, 0)
}

func TestInsertDuplicateActiveSession(t *testing.T) {
	reg := openTestRegistry(t)
	insertSession(t, reg, "/proj", "001")

	err := reg.Insert(context.Background(), &Session{ID: "001", ProjectRoot: "/proj", Dir: "/elsewhere", Mode: ModeDocker})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExists)
	assert.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestSameIDInDifferentProjects(t *testing.T) {
	reg := openTestRegistry(t)
	insertSession(t, reg, "/proj-a", "001")
	insertSession(t, reg, "/proj-b", "001")

	a, err := reg.ListActive(context.Background(), "/proj-a")
	require.NoError(t, err)
	assert.Len(t, a, 1)
}

func TestRecreateAfterDestroy(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	first := insertSession(t, reg, "/proj", "001")
	ok, err := reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)
	require.True(t, ok)

	second := insertSession(t, reg, "/proj", "001")
	assert.NotEqual(t, first.Row, second.Row)

	all, err := reg.ListAll(ctx, "/proj")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInvalidModeRejected(t *testing.T) {
	reg := openTestRegistry(t)
	err := reg.Insert(context.Background(), &Session{ID: "001", ProjectRoot: "/proj", Dir: "/proj", Mode: "vm"})
	assert.Error(t, err)
}

func TestListActiveOrderAndFilter(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	insertSession(t, reg, "/proj", "003")
	insertSession(t, reg, "/proj", "001")
	insertSession(t, reg, "/proj", "002")
	insertSession(t, reg, "/other", "004")

	_, err := reg.MarkDestroyed(ctx, "/proj", "002")
	require.NoError(t, err)

	active, err := reg.ListActive(ctx, "/proj")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "001", active[0].ID)
	assert.Equal(t, "003", active[1].ID)

	all, err := reg.ListAll(ctx, "/proj")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "002", all[1].ID)
	assert.NotNil(t, all[1].DestroyedAt)
}

func TestFindActiveNeverReturnsDestroyed(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	_, err := reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)

	_, err = reg.FindActive(ctx, "/proj", "001")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.FindActiveByDir(ctx, s.Dir)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindActiveByDir(t *testing.T) {
	reg := openTestRegistry(t)
	s := insertSession(t, reg, "/proj", "001")

	found, err := reg.FindActiveByDir(context.Background(), s.Dir)
	require.NoError(t, err)
	assert.Equal(t, "001", found.ID)
	assert.Equal(t, "/proj", found.ProjectRoot)
}

func TestMarkDestroyedIsIdempotent(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()
	insertSession(t, reg, "/proj", "001")

	ok, err := reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)
	assert.True(t, ok)

	afterFirst, err := reg.ListAll(ctx, "/proj")
	require.NoError(t, err)

	ok, err = reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)
	assert.False(t, ok, "second call must report already gone")

	afterSecond, err := reg.ListAll(ctx, "/proj")
	require.NoError(t, err)
	assert.Equal(t, afterFirst, afterSecond)

	ok, err = reg.MarkDestroyed(ctx, "/proj", "404")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkDestroyedReleasesPorts(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	require.NoError(t, reg.AssignPorts(ctx, s, []PortAllocation{{Service: "app", Port: 41001}}))

	_, err := reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)

	excluded, err := reg.ExcludedPorts(ctx)
	require.NoError(t, err)
	assert.NotContains(t, excluded, 41001)

	other := insertSession(t, reg, "/proj", "002")
	assert.NoError(t, reg.AssignPorts(ctx, other, []PortAllocation{{Service: "app", Port: 41001}}))
}

func TestAssignPortsAndRead(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	err := reg.AssignPorts(ctx, s, []PortAllocation{
		{Service: "app", Port: 41001},
		{Service: "postgres", Port: 41002},
	})
	require.NoError(t, err)

	ports, err := reg.Ports(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"app": 41001, "postgres": 41002}, ports)
}

func TestAssignPortsGlobalUniquenessIsAtomic(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	a := insertSession(t, reg, "/proj-a", "001")
	b := insertSession(t, reg, "/proj-b", "001")

	require.NoError(t, reg.AssignPorts(ctx, a, []PortAllocation{{Service: "app", Port: 41001}}))

	err := reg.AssignPorts(ctx, b, []PortAllocation{
		{Service: "web", Port: 41050},
		{Service: "app", Port: 41001},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortTaken)

	ports, err := reg.Ports(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, ports, "a failed batch must leave no partial allocation")
}

func TestAssignPortsInsertsNewSessionWithPorts(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	holder := insertSession(t, reg, "/other", "001")
	require.NoError(t, reg.AssignPorts(ctx, holder, []PortAllocation{{Service: "app", Port: 41001}}))

	s := &Session{ID: "001", ProjectRoot: "/proj", Dir: "/proj/.lanes/001", Mode: ModeNative}
	err := reg.AssignPorts(ctx, s, []PortAllocation{{Service: "app", Port: 41001}})
	require.ErrorIs(t, err, ErrPortTaken)
	assert.Zero(t, s.Row)

	all, err := reg.ListAll(ctx, "/proj")
	require.NoError(t, err)
	assert.Empty(t, all, "a session row never commits without its ports")

	require.NoError(t, reg.AssignPorts(ctx, s, []PortAllocation{{Service: "app", Port: 41002}}))
	assert.NotZero(t, s.Row)

	found, err := reg.FindActive(ctx, "/proj", "001")
	require.NoError(t, err)
	ports, err := reg.Ports(ctx, found)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"app": 41002}, ports)
}

func TestOneActiveInPlaceSessionPerProject(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	inPlace := func(root, id string) *Session {
		return &Session{ID: id, ProjectRoot: root, Dir: root, Mode: ModeNative, InPlace: true}
	}

	require.NoError(t, reg.Insert(ctx, inPlace("/proj", "001")))

	err := reg.Insert(ctx, inPlace("/proj", "002"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInPlaceExists)
	assert.NotErrorIs(t, err, ErrSessionExists)

	assert.NoError(t, reg.Insert(ctx, inPlace("/other", "001")))

	_, err = reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)
	assert.NoError(t, reg.Insert(ctx, inPlace("/proj", "002")))
}

func TestAssignPortsDuplicateService(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	err := reg.AssignPorts(ctx, s, []PortAllocation{
		{Service: "app", Port: 41001},
		{Service: "app", Port: 41002},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrPortTaken)
}

func TestAssignPortsRejectsReservedPort(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Reserve(ctx, 41001, "grafana"))
	s := insertSession(t, reg, "/proj", "001")

	err := reg.AssignPorts(ctx, s, []PortAllocation{{Service: "app", Port: 41001}})
	assert.ErrorIs(t, err, ErrPortTaken)
}

func TestRemoveCascadesToAllocations(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	require.NoError(t, reg.AssignPorts(ctx, s, []PortAllocation{
		{Service: "app", Port: 41001},
		{Service: "db", Port: 41002},
	}))

	ok, err := reg.Remove(ctx, "/proj", "001")
	require.NoError(t, err)
	assert.True(t, ok)

	var orphans int
	require.NoError(t, reg.db.QueryRow("SELECT COUNT(*) FROM port_allocations").Scan(&orphans))
	assert.Zero(t, orphans)

	ok, err = reg.Remove(ctx, "/proj", "001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeDestroyed(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	insertSession(t, reg, "/proj", "001")
	insertSession(t, reg, "/proj", "002")
	_, err := reg.MarkDestroyed(ctx, "/proj", "001")
	require.NoError(t, err)

	n, err := reg.PurgeDestroyed(ctx, "/proj")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := reg.ListAll(ctx, "/proj")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "002", all[0].ID)
}

func TestReservations(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Reserve(ctx, 5432, "system postgres"))
	require.NoError(t, reg.Reserve(ctx, 3000, ""))

	err := reg.Reserve(ctx, 5432, "again")
	assert.ErrorIs(t, err, ErrPortReserved)

	list, err := reg.Reservations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3000, list[0].Port)
	assert.Equal(t, "", list[0].Reason)
	assert.Equal(t, "system postgres", list[1].Reason)

	excluded, err := reg.ExcludedPorts(ctx)
	require.NoError(t, err)
	assert.Contains(t, excluded, 5432)

	ok, err := reg.Unreserve(ctx, 5432)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = reg.Unreserve(ctx, 5432)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveAllocatedPort(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	s := insertSession(t, reg, "/proj", "001")
	require.NoError(t, reg.AssignPorts(ctx, s, []PortAllocation{{Service: "app", Port: 41001}}))

	err := reg.Reserve(ctx, 41001, "")
	assert.ErrorIs(t, err, ErrPortTaken)
}

func TestExcludedPortsSpansProjects(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	a := insertSession(t, reg, "/proj-a", "001")
	b := insertSession(t, reg, "/proj-b", "001")
	require.NoError(t, reg.AssignPorts(ctx, a, []PortAllocation{{Service: "app", Port: 41001}}))
	require.NoError(t, reg.AssignPorts(ctx, b, []PortAllocation{{Service: "app", Port: 41002}}))
	require.NoError(t, reg.Reserve(ctx, 41003, ""))

	excluded, err := reg.ExcludedPorts(ctx)
	require.NoError(t, err)
	assert.Len(t, excluded, 3)
}

// TestConcurrentWritersOnOneFile opens the same file from several handles,
// the way independent CLI invocations do, and races them for one port.
func TestConcurrentWritersOnOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	setup, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := Open(path)
			if err != nil {
				errs[i] = err
				return
			}
			defer func() { _ = reg.Close() }()

			s := &Session{ID: "001", ProjectRoot: filepath.Join("/proj", string(rune('a'+i))), Dir: "/tmp", Mode: ModeNative}
			if err := reg.Insert(context.Background(), s); err != nil {
				errs[i] = err
				return
			}
			errs[i] = reg.AssignPorts(context.Background(), s, []PortAllocation{{Service: "app", Port: 41999}})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrPortTaken):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, writers-1, lost)
}
