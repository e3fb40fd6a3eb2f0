package srec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodiumlight/stm8tc/pkg/srec"
)

// Property 6: for a non-overlapping set of loadable sections, writing then
// reading back yields a memory map that, packed, equals the input sorted
// by address.
func TestWriteReadRoundTrip(t *testing.T) {
	m := srec.NewAddressMap()
	m.Add(0x8010, []byte{0xAA, 0xBB})
	m.Add(0x8000, []byte{0x01, 0x02, 0x03, 0x04})
	m.Add(0x8004, []byte{0x05, 0x06}) // abuts the previous chunk's end

	packed, err := m.Pack()
	require.NoError(t, err)
	require.Len(t, packed, 2)
	assert.Equal(t, uint32(0x8000), packed[0].Addr)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, packed[0].Data)
	assert.Equal(t, uint32(0x8010), packed[1].Addr)

	var buf bytes.Buffer
	require.NoError(t, srec.Write(&buf, "stm8tc", packed))
	assert.Contains(t, buf.String(), "\r\n")

	gotMap, comments, err := srec.Read(&buf)
	require.NoError(t, err)
	require.Equal(t, []string{"stm8tc"}, comments)

	gotPacked, err := gotMap.Pack()
	require.NoError(t, err)
	require.Equal(t, packed, gotPacked)
}

func TestOverlapRejected(t *testing.T) {
	m := srec.NewAddressMap()
	m.Add(0x100, []byte{1, 2, 3, 4})
	m.Add(0x102, []byte{9, 9})
	_, err := m.Pack()
	assert.ErrorIs(t, err, srec.ErrOverlap)
}

func TestSplitsLargeChunkAcrossRecords(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 20)
	var buf bytes.Buffer
	require.NoError(t, srec.Write(&buf, "", []srec.Chunk{{Addr: 0, Data: data}}))

	m, _, err := srec.Read(&buf)
	require.NoError(t, err)
	packed, err := m.Pack()
	require.NoError(t, err)
	require.Len(t, packed, 1)
	assert.Equal(t, data, packed[0].Data)
}

func TestS4IsIllegal(t *testing.T) {
	_, _, err := srec.Read(bytes.NewBufferString("S4FF00000000\r\n"))
	assert.ErrorIs(t, err, srec.ErrBadType)
}

func TestChecksumMismatchRejected(t *testing.T) {
	// S1 record for address 0x0000 with no payload, whose valid checksum
	// 0xFC has been corrupted to 0xFE.
	_, _, err := srec.Read(bytes.NewBufferString("S1030000FE\r\n"))
	assert.ErrorIs(t, err, srec.ErrChecksum)
}

func TestRecordTypeWidenWithAddress(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, srec.Write(&buf, "", []srec.Chunk{{Addr: 0x1000000, Data: []byte{1}}}))
	assert.Contains(t, buf.String(), "S3")
}
