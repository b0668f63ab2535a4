package packet

import (
	"net/netip"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

type movePacket struct {
	X, Y   float32
	Name   string
	Tags   []string
	IDs    []int32
	Blob   []byte
	Owner  netip.AddrPort
	Cached int `netdata:"-"`
	hidden int
}

type chatPacket struct {
	Channel uint8
	Text    string
}

// pingPacket 自行编解码。
type pingPacket struct {
	Seq  uint32
	Note string
}

func (p *pingPacket) Serialize(w *netdata.DataWriter) {
	w.PutUint32(p.Seq)
	w.PutString(p.Note)
}

func (p *pingPacket) Deserialize(r *netdata.DataReader) error {
	var err error
	if p.Seq, err = r.GetUint32(); err != nil {
		return err
	}
	p.Note, err = r.GetString()
	return err
}

type session struct {
	id int32
}

type ProcessorSuite struct {
	suite.Suite
	p *Processor
	w *netdata.DataWriter
}

func (s *ProcessorSuite) SetupTest() {
	lg, props, err := log.InitTestLogger(s.T(), &log.Config{Level: "debug"})
	s.Require().NoError(err)
	s.T().Cleanup(log.ReplaceGlobals(lg, props))

	s.p = New(Options{})
	s.w = netdata.NewDataWriter()
}

func (s *ProcessorSuite) reader() *netdata.DataReader {
	return netdata.NewDataReader(s.w.CopyData())
}

func (s *ProcessorSuite) TestWireLayout() {
	s.Require().NoError(Subscribe(s.p, func(*chatPacket) {}, nil))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Channel: 2, Text: "hi"}))

	r := s.reader()
	id, err := r.GetUint64()
	s.Require().NoError(err)
	s.Equal(HashOf[chatPacket](), id)

	rest := r.GetRemainingBytes()
	s.Equal([]byte{2, 2, 0, 'h', 'i'}, rest)
}

func (s *ProcessorSuite) TestRoutesInOrder() {
	var order []string
	var gotMove *movePacket
	var gotPing *pingPacket
	s.Require().NoError(Subscribe(s.p, func(m *movePacket) {
		order = append(order, "move")
		gotMove = m
	}, nil))
	s.Require().NoError(SubscribeNetSerializable(s.p, func(p *pingPacket) {
		order = append(order, "ping")
		gotPing = p
	}, nil))

	move := &movePacket{
		X: 1.5, Y: -2,
		Name:   "knight",
		Tags:   []string{"a", "bc"},
		IDs:    []int32{1, -1},
		Blob:   []byte{9, 8},
		Owner:  netip.MustParseAddrPort("127.0.0.1:9050"),
		Cached: 77,
		hidden: 5,
	}
	s.Require().NoError(Write(s.p, s.w, move))
	s.Require().NoError(WriteNetSerializable(s.p, s.w, &pingPacket{Seq: 7, Note: "pong"}))

	r := s.reader()
	s.Require().NoError(s.p.ReadAllPackets(r))
	s.True(r.EndOfData())
	s.Equal([]string{"move", "ping"}, order)

	s.Equal(move.Name, gotMove.Name)
	s.Equal(move.Tags, gotMove.Tags)
	s.Equal(move.IDs, gotMove.IDs)
	s.Equal(move.Blob, gotMove.Blob)
	s.Equal(move.Owner, gotMove.Owner)
	s.Equal(move.X, gotMove.X)
	s.Equal(move.Y, gotMove.Y)
	s.Zero(gotMove.Cached)
	s.Zero(gotMove.hidden)
	s.Equal(&pingPacket{Seq: 7, Note: "pong"}, gotPing)
}

func (s *ProcessorSuite) TestAllocatingSubscription() {
	var got []*chatPacket
	s.Require().NoError(Subscribe(s.p, func(c *chatPacket) { got = append(got, c) }, nil))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "one"}))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "two"}))

	s.Require().NoError(s.p.ReadAllPackets(s.reader()))
	s.Require().Len(got, 2)
	s.NotSame(got[0], got[1])
	s.Equal("one", got[0].Text)
	s.Equal("two", got[1].Text)
}

func (s *ProcessorSuite) TestCustomConstructor() {
	calls := 0
	s.Require().NoError(Subscribe(s.p, func(c *chatPacket) {}, func() *chatPacket {
		calls++
		return &chatPacket{}
	}))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "x"}))
	s.Require().NoError(s.p.ReadAllPackets(s.reader()))
	s.Equal(1, calls)
}

func (s *ProcessorSuite) TestReusableSubscriptionAliases() {
	var got []*chatPacket
	s.Require().NoError(SubscribeReusable(s.p, func(c *chatPacket) { got = append(got, c) }))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "one"}))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "two"}))

	s.Require().NoError(s.p.ReadAllPackets(s.reader()))
	s.Require().Len(got, 2)
	s.Same(got[0], got[1])
	s.Equal("two", got[0].Text)
}

func (s *ProcessorSuite) TestReusableNetSerializable() {
	var got []*pingPacket
	s.Require().NoError(SubscribeNetSerializableReusable(s.p, func(p *pingPacket) { got = append(got, p) }))
	s.Require().NoError(WriteNetSerializable(s.p, s.w, &pingPacket{Seq: 1}))
	s.Require().NoError(WriteNetSerializable(s.p, s.w, &pingPacket{Seq: 2}))

	s.Require().NoError(s.p.ReadAllPackets(s.reader()))
	s.Require().Len(got, 2)
	s.Same(got[0], got[1])
	s.Equal(uint32(2), got[1].Seq)
}

func (s *ProcessorSuite) TestUserData() {
	var seen []*session
	s.Require().NoError(SubscribeWithUserData(s.p, func(c *chatPacket, sess *session) {
		seen = append(seen, sess)
	}, nil))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "x"}))

	a := &session{id: 1}
	s.Require().NoError(s.p.ReadPacketWithUserData(s.reader(), a))
	s.Require().NoError(s.p.ReadPacket(s.reader()))
	s.Equal([]*session{a, nil}, seen)

	r := s.reader()
	err := s.p.ReadPacketWithUserData(r, "not a session")
	s.ErrorIs(err, merr.ErrParameterInvalid)
	s.Equal(0, r.Position())
	s.Len(seen, 2)
}

func (s *ProcessorSuite) TestNetSerializableUserData() {
	var got int32
	s.Require().NoError(SubscribeNetSerializableWithUserData(s.p, func(p *pingPacket, sess *session) {
		got = sess.id + int32(p.Seq)
	}, nil))
	s.Require().NoError(SubscribeNetSerializableReusableWithUserData(s.p, func(p *pinnedNote, sess *session) {}))
	s.Require().NoError(WriteNetSerializable(s.p, s.w, &pingPacket{Seq: 40}))
	s.Require().NoError(s.p.ReadAllPacketsWithUserData(s.reader(), &session{id: 2}))
	s.Equal(int32(42), got)
}

func (s *ProcessorSuite) TestUnregisteredAbortsAfterPriorHandlers() {
	dispatched := 0
	s.Require().NoError(Subscribe(s.p, func(*chatPacket) { dispatched++ }, nil))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "a"}))
	first := s.w.Length()
	s.w.PutUint64(0x1234)
	s.w.PutUint32(0)

	r := s.reader()
	err := s.p.ReadAllPackets(r)
	s.Require().Error(err)
	s.Equal(1, dispatched)
	s.ErrorIs(err, merr.ErrCodecMalformedPacket)
	s.ErrorIs(err, merr.ErrCodecUnregisteredType)

	var perr *ParseError
	s.Require().True(errors.As(err, &perr))
	s.Equal(uint64(0x1234), perr.TypeID)
	s.Empty(perr.TypeName)
	s.Equal(first, perr.Position)
	s.Equal(first+12, perr.Size)
	s.Equal(first, r.Position())
	s.Contains(err.Error(), "type_id=0x0000000000001234")
}

func (s *ProcessorSuite) TestTruncatedHeader() {
	r := netdata.NewDataReader([]byte{1, 2, 3})
	err := s.p.ReadPacket(r)
	s.ErrorIs(err, merr.ErrCodecMalformedPacket)
	s.ErrorIs(err, merr.ErrCodecOutOfData)
	s.Equal(0, r.Position())
}

func (s *ProcessorSuite) TestTruncatedBody() {
	s.Require().NoError(Subscribe(s.p, func(*chatPacket) { s.Fail("must not dispatch") }, nil))
	s.Require().NoError(Write(s.p, s.w, &chatPacket{Text: "hello"}))
	data := s.w.CopyData()

	r := netdata.NewDataReader(data[:len(data)-1])
	err := s.p.ReadPacket(r)
	s.ErrorIs(err, merr.ErrCodecMalformedPacket)
	s.ErrorIs(err, merr.ErrCodecOutOfData)

	var perr *ParseError
	s.Require().True(errors.As(err, &perr))
	s.Equal(TypeName(reflect.TypeFor[chatPacket]()), perr.TypeName)
	s.Equal(0, r.Position())
}

func (s *ProcessorSuite) TestPermissiveDropsRemainder() {
	p := New(Options{Permissive: true})
	dispatched := 0
	s.Require().NoError(Subscribe(p, func(*chatPacket) { dispatched++ }, nil))
	s.Require().NoError(Write(p, s.w, &chatPacket{Text: "a"}))
	s.w.PutUint64(0xdead)
	s.Require().NoError(Write(p, s.w, &chatPacket{Text: "b"}))

	r := s.reader()
	s.NoError(p.ReadAllPackets(r))
	s.True(r.EndOfData())
	s.Equal(1, dispatched)
}

func (s *ProcessorSuite) TestEmptyReader() {
	s.NoError(s.p.ReadAllPackets(netdata.NewDataReader(nil)))
}

func (s *ProcessorSuite) TestDuplicateAndRemove() {
	s.Require().NoError(Subscribe(s.p, func(*chatPacket) {}, nil))
	err := SubscribeReusable(s.p, func(*chatPacket) {})
	s.ErrorIs(err, merr.ErrCodecDuplicateType)
	s.Len(s.p.Subscriptions(), 1)
	s.False(s.p.Subscriptions()[0].Reusable)

	s.True(RemoveSubscription[chatPacket](s.p))
	s.False(RemoveSubscription[chatPacket](s.p))
	s.Empty(s.p.Subscriptions())

	err = Write(s.p, s.w, &chatPacket{})
	s.ErrorIs(err, merr.ErrCodecUnregisteredType)
	s.Equal(0, s.w.Length())

	s.NoError(SubscribeReusable(s.p, func(*chatPacket) {}))
}

func (s *ProcessorSuite) TestSubscriptionsSnapshot() {
	s.Require().NoError(SubscribeWithUserData(s.p, func(*movePacket, *session) {}, nil))
	s.Require().NoError(SubscribeNetSerializableReusable(s.p, func(*pingPacket) {}))

	infos := s.p.Subscriptions()
	s.Require().Len(infos, 2)
	s.Equal(TypeName(reflect.TypeFor[movePacket]()), infos[0].TypeName)
	s.True(infos[0].WithUserData)
	s.Equal(HashOf[pingPacket](), infos[1].TypeID)
	s.True(infos[1].Reusable)
}

func (s *ProcessorSuite) TestNilArguments() {
	s.ErrorIs(Subscribe[chatPacket](s.p, nil, nil), merr.ErrParameterMissing)
	s.ErrorIs(SubscribeNetSerializable[pingPacket](s.p, nil, nil), merr.ErrParameterMissing)
	s.Require().NoError(Subscribe(s.p, func(*chatPacket) {}, nil))
	s.ErrorIs(Write[chatPacket](s.p, s.w, nil), merr.ErrParameterMissing)
	s.ErrorIs(WriteNetSerializable[pingPacket](s.p, s.w, nil), merr.ErrParameterMissing)

	s.Require().NoError(SubscribeNetSerializable(s.p, func(*pinnedNote) {}, func() *pinnedNote { return nil }))
	s.Require().NoError(WriteNetSerializable(s.p, s.w, &pinnedNote{}))
	s.ErrorIs(s.p.ReadPacket(s.reader()), merr.ErrParameterMissing)
}

func TestProcessor(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

// pinnedNote 固定了线上名称，用于验证多个订阅共存。
type pinnedNote struct {
	pingPacket
}

func (*pinnedNote) PacketTypeName() string { return "Game.Packets.Note" }

func TestProcessor_ConcurrentReaders(t *testing.T) {
	p := New(Options{})
	var count atomic.Int64
	require.NoError(t, Subscribe(p, func(c *chatPacket) { count.Add(int64(len(c.Text))) }, nil))

	data, err := Marshal(p, &chatPacket{Text: "abc"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, p.ReadPacket(netdata.NewDataReader(data)))
				_, err := Marshal(p, &chatPacket{Text: "z"})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8*100*3), count.Load())
}
