package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/domain/model"
)

const testSeed = "0x9bf49a6a0755f953811fce125f2683d50429c3bb49e074147e0089a52eae155f"

var signingMessage = []byte("civic-signing-message")

type fakeNode struct {
	mu        sync.Mutex
	submitted []SignedTransaction
	polls     int32
	pending   int32
	failTx    bool
	badSig    bool
}

func (f *fakeNode) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts/{addr}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sequence_number":"7","authentication_key":"0x00"}`))
	})
	mux.HandleFunc("POST /transactions/encode_submission", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"0x` + hex.EncodeToString(signingMessage) + `"`))
	})
	mux.HandleFunc("POST /transactions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var tx SignedTransaction
		if err := sonic.Unmarshal(body, &tx); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pub, _ := hex.DecodeString(strings.TrimPrefix(tx.Signature.PublicKey, "0x"))
		sig, _ := hex.DecodeString(strings.TrimPrefix(tx.Signature.Signature, "0x"))
		if !ed25519.Verify(pub, signingMessage, sig) {
			f.badSig = true
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"bad signature","error_code":"invalid_signature"}`))
			return
		}
		f.mu.Lock()
		f.submitted = append(f.submitted, tx)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"hash":"0xabc"}`))
	})
	mux.HandleFunc("GET /transactions/by_hash/{hash}", func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&f.polls, 1)
		switch {
		case n == 1:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found","error_code":"transaction_not_found"}`))
		case n <= 1+atomic.LoadInt32(&f.pending):
			_, _ = w.Write([]byte(`{"type":"pending_transaction"}`))
		case f.failTx:
			_, _ = w.Write([]byte(`{"type":"user_transaction","success":false,"vm_status":"Move abort"}`))
		default:
			_, _ = w.Write([]byte(`{"type":"user_transaction","success":true,"vm_status":"Executed successfully"}`))
		}
	})
	return mux
}

func TestNewClient(t *testing.T) {
	Convey("Given signing key inputs", t, func() {
		Convey("An empty key reports missing credentials", func() {
			_, err := NewClient("http://node", "  ", "0x1")
			So(errors.Is(err, ErrNoCredentials), ShouldBeTrue)
		})

		Convey("A malformed key is rejected", func() {
			_, err := NewClient("http://node", "0xzz", "0x1")
			So(errors.Is(err, ErrInvalidKey), ShouldBeTrue)
			_, err = NewClient("http://node", "0xabcd", "0x1")
			So(errors.Is(err, ErrInvalidKey), ShouldBeTrue)
		})

		Convey("Prefixed and bare seeds derive the same address", func() {
			a, err := NewClient("http://node/", testSeed, "0x1")
			So(err, ShouldBeNil)
			b, err := NewClient("http://node", "ed25519-priv-"+testSeed, "0x1")
			So(err, ShouldBeNil)
			c, err := NewClient("http://node", strings.TrimPrefix(testSeed, "0x"), "0x1")
			So(err, ShouldBeNil)
			So(a.Address(), ShouldEqual, b.Address())
			So(a.Address(), ShouldEqual, c.Address())
			So(a.Address(), ShouldStartWith, "0x")
			So(len(a.Address()), ShouldEqual, 66)
			So(a.EntryFunction("submit_report"), ShouldEqual, "0x1::CivicReporting::submit_report")
		})
	})
}

func TestClientCall(t *testing.T) {
	Convey("Given a fake full node", t, func() {
		node := &fakeNode{pending: 1}
		srv := httptest.NewServer(node.handler())
		defer srv.Close()

		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		c, err := NewClient(srv.URL, testSeed, "0xcafe", WithClock(func() time.Time { return fixed }))
		So(err, ShouldBeNil)

		Convey("When calling an entry function", func() {
			hash, err := c.Call(context.Background(), "acknowledge_report", "r-1", "admin-1")

			Convey("Then the signed transaction is submitted and confirmed", func() {
				So(err, ShouldBeNil)
				So(hash, ShouldEqual, "0xabc")
				So(node.badSig, ShouldBeFalse)
				So(node.submitted, ShouldHaveLength, 1)
				tx := node.submitted[0]
				So(tx.Sender, ShouldEqual, c.Address())
				So(tx.SequenceNumber, ShouldEqual, "7")
				So(tx.Payload.Type, ShouldEqual, "entry_function_payload")
				So(tx.Payload.Function, ShouldEqual, "0xcafe::CivicReporting::acknowledge_report")
				So(tx.Payload.Arguments, ShouldResemble, []string{"r-1", "admin-1"})
				So(tx.Payload.TypeArguments, ShouldResemble, []string{})
				So(tx.ExpirationTimestampSecs, ShouldEqual, "1772367000")
				So(atomic.LoadInt32(&node.polls), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})

		Convey("When the transaction aborts on chain", func() {
			node.failTx = true
			_, err := c.Call(context.Background(), "resolve_report", "r-1", "admin-1")

			Convey("Then the failure is permanent", func() {
				So(errors.Is(err, ErrTxFailed), ShouldBeTrue)
			})
		})
	})
}

type slowCaller struct{ delay time.Duration }

func (s slowCaller) Call(ctx context.Context, _ string, _ ...string) (string, error) {
	time.Sleep(s.delay)
	return "0xlate", nil
}

type stubCaller struct {
	hash  string
	err   error
	calls []string
}

func (s *stubCaller) Call(_ context.Context, fn string, args ...string) (string, error) {
	s.calls = append(s.calls, fn+"("+strings.Join(args, ",")+")")
	return s.hash, s.err
}

func TestChainRecorder(t *testing.T) {
	Convey("Given a recorder with an audit log", t, func() {
		ctx := context.Background()
		audit := repository.NewMemoryAudit()

		Convey("When the chain confirms", func() {
			caller := &stubCaller{hash: "0xfeed"}
			rec := NewRecorder(caller, audit)
			ref, err := rec.RecordEvent(ctx, model.MilestoneResolved, "r-1", "admin-1")

			Convey("Then the real hash is returned and audited", func() {
				So(err, ShouldBeNil)
				So(ref, ShouldResemble, model.TxRef{Hash: "0xfeed"})
				So(caller.calls, ShouldResemble, []string{"resolve_report(r-1,admin-1)"})
				entries, _ := audit.ListByReport(ctx, "r-1")
				So(entries, ShouldHaveLength, 1)
				So(entries[0].TxHash, ShouldEqual, "0xfeed")
				So(entries[0].Synthetic, ShouldBeFalse)
				So(entries[0].Kind, ShouldEqual, model.MilestoneResolved)
			})
		})

		Convey("When no credentials are configured", func() {
			rec := NewRecorder(nil, audit)
			ref, err := rec.RecordEvent(ctx, model.MilestoneSubmitted, "r-2", "citizen-1")

			Convey("Then a synthetic ref is returned with a degraded error", func() {
				So(rec.Degraded(), ShouldBeTrue)
				So(ref.Synthetic, ShouldBeTrue)
				So(ref.Hash, ShouldStartWith, "local_tx_")
				So(errors.Is(err, model.ErrDownstreamDegraded), ShouldBeTrue)
				So(errors.Is(err, ErrNoCredentials), ShouldBeTrue)
				entries, _ := audit.ListByReport(ctx, "r-2")
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Synthetic, ShouldBeTrue)
				So(entries[0].Error, ShouldNotBeEmpty)
			})
		})

		Convey("When the chain hangs past the deadline", func() {
			rec := NewRecorder(slowCaller{delay: time.Second}, audit, WithTimeout(30*time.Millisecond))
			start := time.Now()
			ref, err := rec.RecordEvent(ctx, model.MilestoneAcknowledged, "r-3", "admin-1")

			Convey("Then the recorder gives up without waiting for it", func() {
				So(time.Since(start), ShouldBeLessThan, 500*time.Millisecond)
				So(ref.Synthetic, ShouldBeTrue)
				So(errors.Is(err, ErrTimeout), ShouldBeTrue)
			})
		})

		Convey("When the chain errors", func() {
			rec := NewRecorder(&stubCaller{err: errors.New("node down")}, audit)
			ref, err := rec.RecordEvent(ctx, model.MilestoneResolved, "r-4", "admin-1")

			Convey("Then the ref is still usable", func() {
				So(ref.Hash, ShouldNotBeEmpty)
				So(ref.Synthetic, ShouldBeTrue)
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When a local-only milestone is recorded", func() {
			caller := &stubCaller{hash: "0xnever"}
			rec := NewRecorder(caller, audit)
			So(rec.RecordLocal(ctx, model.MilestoneDeleted, "r-5", "citizen-1"), ShouldBeNil)

			Convey("Then only the audit log is touched", func() {
				So(caller.calls, ShouldBeEmpty)
				entries, _ := audit.ListByReport(ctx, "r-5")
				So(entries, ShouldHaveLength, 1)
				So(entries[0].TxHash, ShouldBeEmpty)
			})
		})
	})
}
