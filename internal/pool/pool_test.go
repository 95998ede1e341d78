package pool

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gleak"
	. "github.com/thediveo/success"
)

// feed returns a closed channel holding 0..n-1.
func feed(n int) <-chan int {
	ch := make(chan int, n)
	for i := 0; i < n; i++ {
		ch <- i
	}
	close(ch)
	return ch
}

func collect[R any](ch <-chan R) []R {
	var out []R
	for r := range ch {
		out = append(out, r)
	}
	return out
}

var _ = Describe("bounded worker pool", func() {

	BeforeEach(func() {
		goodgos := Goroutines()
		DeferCleanup(func() {
			Eventually(Goroutines).WithTimeout(3 * time.Second).WithPolling(50 * time.Millisecond).
				ShouldNot(HaveLeaked(goodgos))
		})
	})

	It("rejects a concurrency below one", func() {
		_, err := New[int, int](Config{Concurrency: 0})
		Expect(err).To(MatchError(ErrInvalidConcurrency))
	})

	DescribeTable("completes every item exactly once",
		func(items, concurrency int) {
			p := Successful(New[int, int](Config{Concurrency: concurrency}))
			results := collect(p.Run(context.Background(), feed(items), func(_ context.Context, i int) int {
				time.Sleep(time.Duration(i%3) * time.Millisecond)
				return i
			}))
			Expect(results).To(HaveLen(items))
			seen := map[int]int{}
			for _, r := range results {
				seen[r]++
			}
			for i := 0; i < items; i++ {
				Expect(seen[i]).To(Equal(1), "item %d", i)
			}
			Expect(p.Dispatched()).To(Equal(items))
			Expect(p.Err()).NotTo(HaveOccurred())
		},
		Entry("single slot", 10, 1),
		Entry("fewer slots than items", 50, 7),
		Entry("as many slots as items", 12, 12),
		Entry("more slots than items", 3, 10),
		Entry("empty input", 0, 4),
	)

	It("keeps exactly the slot count in flight", func() {
		const concurrency = 4
		var inflight, peak atomic.Int32
		p := Successful(New[int, int](Config{Concurrency: concurrency}))
		results := collect(p.Run(context.Background(), feed(20), func(_ context.Context, i int) int {
			now := inflight.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			return i
		}))
		Expect(results).To(HaveLen(20))
		Expect(peak.Load()).To(BeEquivalentTo(concurrency))
	})

	It("refills a slot as soon as its task completes", func() {
		// One slow task must not hold back the other slot.
		p := Successful(New[int, int](Config{Concurrency: 2}))
		start := time.Now()
		results := collect(p.Run(context.Background(), feed(6), func(_ context.Context, i int) int {
			if i == 0 {
				time.Sleep(300 * time.Millisecond)
			} else {
				time.Sleep(10 * time.Millisecond)
			}
			return i
		}))
		Expect(time.Since(start)).To(BeNumerically("<", 450*time.Millisecond))
		Expect(results).To(HaveLen(6))
		Expect(results[len(results)-1]).To(Equal(0), "slow task completes last")
	})

	It("emits results in completion order", func() {
		p := Successful(New[int, int](Config{Concurrency: 3}))
		results := collect(p.Run(context.Background(), feed(3), func(_ context.Context, i int) int {
			time.Sleep(time.Duration(3-i) * 40 * time.Millisecond)
			return i
		}))
		Expect(results).To(Equal([]int{2, 1, 0}))
	})

	It("does not pull more input than it can hold", func() {
		const concurrency = 3
		var sent atomic.Int32
		items := make(chan int)
		stopFeeding := make(chan struct{})
		go func() {
			defer close(items)
			for i := 0; ; i++ {
				select {
				case items <- i:
					sent.Add(1)
				case <-stopFeeding:
					return
				}
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		p := Successful(New[int, int](Config{Concurrency: concurrency}))
		results := p.Run(ctx, items, func(_ context.Context, i int) int { return i })

		// Nobody reads results yet: slots plus the result buffer bound the intake.
		Consistently(sent.Load).WithTimeout(200 * time.Millisecond).
			Should(BeNumerically("<=", 2*concurrency))
		Eventually(results).Should(Receive())

		close(stopFeeding)
		cancel()
		for range results {
		}
	})

	It("stops dispatching after cancellation and drains in-flight tasks", func() {
		ctx, cancel := context.WithCancel(context.Background())
		release := make(chan struct{})
		var started, cancelledTasks atomic.Int32
		p := Successful(New[int, int](Config{Concurrency: 2, Policy: Drain}))
		results := p.Run(ctx, feed(100), func(taskctx context.Context, i int) int {
			started.Add(1)
			<-release
			if taskctx.Err() != nil {
				cancelledTasks.Add(1)
			}
			return i
		})

		Eventually(started.Load).Should(BeEquivalentTo(2))
		cancel()
		close(release)

		Expect(collect(results)).To(HaveLen(2))
		Expect(p.Dispatched()).To(Equal(2))
		Expect(cancelledTasks.Load()).To(BeZero(), "drained tasks keep a live context")
	})

	It("abandons in-flight tasks when told to", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var started atomic.Int32
		p := Successful(New[int, int](Config{Concurrency: 3, Policy: Abandon}))
		results := p.Run(ctx, feed(100), func(taskctx context.Context, i int) int {
			started.Add(1)
			<-taskctx.Done()
			return i
		})

		Eventually(started.Load).Should(BeEquivalentTo(3))
		cancel()

		Expect(collect(results)).To(BeEmpty())
		Expect(p.Dispatched()).To(Equal(3))
	})

	It("turns a panicking task into a pool fault", func() {
		p := Successful(New[int, int](Config{Concurrency: 2}))
		results := collect(p.Run(context.Background(), feed(50), func(_ context.Context, i int) int {
			if i == 3 {
				panic("boom")
			}
			time.Sleep(5 * time.Millisecond)
			return i
		}))
		Expect(p.Err()).To(MatchError(ErrPoolFault))
		Expect(len(results)).To(BeNumerically("<", 50))
	})

	It("rate limits dispatches", func() {
		p := Successful(New[int, int](Config{Concurrency: 5, Rate: 20}))
		start := time.Now()
		results := collect(p.Run(context.Background(), feed(5), func(_ context.Context, i int) int { return i }))
		Expect(results).To(HaveLen(5))
		// First dispatch is immediate, the other four wait 50ms each.
		Expect(time.Since(start)).To(BeNumerically(">=", 180*time.Millisecond))
	})

	It("keeps waiting for rate tokens due after the deadline until the deadline passes", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
		defer cancel()
		p := Successful(New[int, int](Config{Concurrency: 2, Rate: 2}))
		results := collect(p.Run(ctx, feed(10), func(_ context.Context, i int) int { return i }))

		// Tokens at 0s, 0.5s and 1s; the one due at 1.5s is never taken.
		Expect(results).To(HaveLen(3))
		Expect(ctx.Err()).To(MatchError(context.DeadlineExceeded),
			"the stream must only close once the context is done")
		Expect(p.Err()).NotTo(HaveOccurred())
	})

})

var _ = Describe("cancel policy", func() {

	DescribeTable("parsing",
		func(in string, want CancelPolicy, ok bool) {
			got, err := ParseCancelPolicy(in)
			if !ok {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
			Expect(got.String()).NotTo(BeEmpty())
		},
		Entry("default", "", Drain, true),
		Entry("drain", "drain", Drain, true),
		Entry("abandon", " Abandon ", Abandon, true),
		Entry("garbage", "later", Drain, false),
	)

})
