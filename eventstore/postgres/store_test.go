package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"reactor/eventstore"
	"reactor/eventstore/postgres"
)

func TestEventStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Postgres EventStore Integration Suite")
}

var (
	ctx   context.Context
	pool  *pgxpool.Pool
	store *postgres.Store
)

var _ = BeforeSuite(func() {
	ctx = context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_USER":     "reactor",
			"POSTGRES_DB":       "reactor",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	Expect(err).NotTo(HaveOccurred())

	host, err := postgresC.Host(ctx)
	Expect(err).NotTo(HaveOccurred())
	port, err := postgresC.MappedPort(ctx, "5432")
	Expect(err).NotTo(HaveOccurred())

	dsn := fmt.Sprintf("postgres://reactor:secret@%s:%s/reactor?sslmode=disable", host, port.Port())
	poolConfig, err := pgxpool.ParseConfig(dsn)
	Expect(err).NotTo(HaveOccurred())
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe

	pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	Expect(err).NotTo(HaveOccurred())

	Eventually(func() error {
		return pool.Ping(ctx)
	}, 10*time.Second, 200*time.Millisecond).Should(Succeed())

	_, err = pool.Exec(ctx, postgres.Schema)
	Expect(err).NotTo(HaveOccurred())

	store, err = postgres.New(pool)
	Expect(err).NotTo(HaveOccurred())
})

var _ = BeforeEach(func() {
	_, err := pool.Exec(ctx, "TRUNCATE TABLE events, snapshots, dlq_events")
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
})

var _ = Describe("Postgres EventStore", func() {
	It("appends and loads events in version order", func() {
		res, err := store.Append(ctx, "order-1", nil, []eventstore.EventDraft{
			{Type: "PlaceOrder", Payload: []byte(`{"total":10}`)},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.NewVersion).To(Equal(int64(0)))

		expected := int64(0)
		res2, err := store.Append(ctx, "order-1", &expected, []eventstore.EventDraft{{Type: "ShipOrder"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res2.NewVersion).To(Equal(int64(1)))

		events, err := store.Load(ctx, "order-1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Type).To(Equal("PlaceOrder"))
		Expect(events[1].Type).To(Equal("ShipOrder"))
	})

	It("rejects a conflicting expected version", func() {
		_, err := store.Append(ctx, "order-2", nil, []eventstore.EventDraft{{Type: "PlaceOrder"}})
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Append(ctx, "order-2", nil, []eventstore.EventDraft{{Type: "PlaceOrder"}})
		Expect(err).To(HaveOccurred())
		ce, ok := eventstore.AsConcurrencyError(err)
		Expect(ok).To(BeTrue())
		Expect(ce.Expected).To(Equal(int64(-1)))
		Expect(ce.Actual).To(Equal(int64(0)))
	})

	It("classifies a genuine concurrent append race as a concurrency error", func() {
		const racers = 8
		var wg sync.WaitGroup
		results := make([]error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Append(ctx, "order-race", nil, []eventstore.EventDraft{{Type: "PlaceOrder"}})
				results[i] = err
			}(i)
		}
		wg.Wait()

		var successes, conflicts int
		for _, err := range results {
			if err == nil {
				successes++
				continue
			}
			_, ok := eventstore.AsConcurrencyError(err)
			Expect(ok).To(BeTrue(), "non-nil error must classify as ConcurrencyError, got %v", err)
			conflicts++
		}
		Expect(successes).To(Equal(1))
		Expect(conflicts).To(Equal(racers - 1))
	})

	It("never regresses a snapshot to an older version", func() {
		Expect(store.SaveSnapshot(ctx, "order-3", 5, []byte("v5"))).To(Succeed())
		Expect(store.SaveSnapshot(ctx, "order-3", 2, []byte("v2"))).To(Succeed())

		snap, err := store.LoadSnapshot(ctx, "order-3")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap).NotTo(BeNil())
		Expect(snap.Version).To(Equal(int64(5)))
		Expect(snap.State).To(Equal([]byte("v5")))
	})

	It("tails events in global append order across streams", func() {
		_, err := store.Append(ctx, "order-4", nil, []eventstore.EventDraft{{Type: "PlaceOrder"}})
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Append(ctx, "order-5", nil, []eventstore.EventDraft{{Type: "PlaceOrder"}})
		Expect(err).NotTo(HaveOccurred())

		tailCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		tail, err := store.Tail(tailCtx, 0)
		Expect(err).NotTo(HaveOccurred())

		var seen []eventstore.TailEvent
		for te := range tail {
			seen = append(seen, te)
		}
		Expect(seen).To(HaveLen(2))
		Expect(seen[0].StreamID).To(Equal("order-4"))
		Expect(seen[1].StreamID).To(Equal("order-5"))
		Expect(seen[0].GlobalPosition < seen[1].GlobalPosition).To(BeTrue())
	})
})
