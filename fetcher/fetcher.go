package fetcher

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coralreef/httpengine/client"
	"github.com/coralreef/httpengine/datasource"
	"github.com/coralreef/httpengine/reactor"
)

// dispatcher is the subset of client.Dispatcher / client.OnDemandDispatcher
// the fetcher needs, so tests can supply a fake.
type dispatcher interface {
	Fetch(location string, sink client.Sink, opts client.Options) error
}

// ResourceFetcher is spec.md §4.8's fan-out layer: it turns a MultiQuery
// into per-URL tasks posted onto a Dispatcher, and rendezvous-completes
// via a shared counter down to a single Done call.
type ResourceFetcher struct {
	dispatcher          dispatcher
	log                 *zap.SugaredLogger
	defaultTimeout      time.Duration
	defaultMaxRedirects int
	// pool, if non-nil, posts Done callbacks onto it rather than invoking
	// them inline on the completing worker goroutine, per spec.md §4.8.
	pool *reactor.Pool
}

// New builds a ResourceFetcher over d. pool is optional; nil means Done
// is invoked inline on whichever worker goroutine completes last.
// defaultMaxRedirects <= 0 falls back to client.DefaultOptions()'s cap.
func New(d dispatcher, defaultTimeout time.Duration, defaultMaxRedirects int, pool *reactor.Pool, log *zap.SugaredLogger) *ResourceFetcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &ResourceFetcher{dispatcher: d, log: log, defaultTimeout: defaultTimeout, defaultMaxRedirects: defaultMaxRedirects, pool: pool}
}

// Fetch submits mq and invokes done exactly once when every element has
// completed, per spec.md §4.8's three-way size split (empty, singleton,
// N-way rendezvous).
func (f *ResourceFetcher) Fetch(mq MultiQuery, done Done) {
	switch len(mq) {
	case 0:
		f.complete(mq, done)
	case 1:
		f.postOne(mq, 0, mq, done, nil)
	default:
		var once sync.Once
		remaining := int64(len(mq))
		var mu sync.Mutex
		for i := range mq {
			f.postOne(mq, i, mq, done, &rendezvous{
				mu:        &mu,
				once:      &once,
				remaining: &remaining,
			})
		}
	}
}

// rendezvous is the shared per-MultiQuery completion state of spec.md
// §4.8's "counter initialized to N" description.
type rendezvous struct {
	mu        *sync.Mutex
	once      *sync.Once
	remaining *int64
}

func (r *rendezvous) arrive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.remaining--
	return *r.remaining == 0
}

func (f *ResourceFetcher) postOne(mq MultiQuery, idx int, all MultiQuery, done Done, rv *rendezvous) {
	q := mq[idx]
	opts := client.DefaultOptions()
	opts.Reuse = q.Reuse()
	if t := q.Timeout(); t > 0 {
		opts.Timeout = t
	} else {
		opts.Timeout = f.defaultTimeout
	}
	if f.defaultMaxRedirects > 0 {
		opts.MaxRedirects = f.defaultMaxRedirects
	}

	finish := func() {
		if rv == nil {
			f.complete(all, done)
			return
		}
		if rv.arrive() {
			rv.once.Do(func() { f.complete(all, done) })
		}
	}

	sink := client.SinkFuncs{
		OnContent: func(data []byte, info datasource.FileInfo) {
			setFromFileInfo(q, data, info)
			finish()
		},
		OnNotModified: func() {
			q.Set(-1, datasource.CacheUnspecified, nil, 0, "")
			finish()
		},
		OnSeeOther: func(url string) {
			q.SetRedirect(url)
			finish()
		},
		OnError: func(err error) {
			q.SetError(err)
			finish()
		},
	}

	if err := f.dispatcher.Fetch(q.Location(), sink, opts); err != nil {
		q.SetError(err)
		finish()
	}
}

// complete invokes done with mq, posted onto f.pool if one was supplied,
// else inline. Panics from done are recovered and logged, per spec.md
// §4.8's "exceptions thrown from Done are caught and logged."
func (f *ResourceFetcher) complete(mq MultiQuery, done Done) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				f.log.Errorw("fetcher Done callback panicked", "panic", r)
			}
		}()
		done(mq)
	}
	if f.pool != nil {
		f.pool.Post(run)
		return
	}
	run()
}
