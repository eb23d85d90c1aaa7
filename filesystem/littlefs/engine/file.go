package littlefs

import (
	"encoding/binary"
	"io"
	"math/bits"
)

// CTZ skip-lists are littlefs's trick for appending to a file in O(1)
// writes without rewriting the whole chain: block n (for n>0) stores
// ctz(n)+1 pointers, to blocks n-1, n-2, n-4, ... n-2^ctz(n). Walking the
// chain backward from the highest-indexed block touches O(log n) blocks
// instead of O(n), and the structure is entirely determined by block
// count, so no block ever needs to be rewritten once past.
//
// Each block reserves a fixed header for up to maxPointers uint32
// pointers plus a little-endian byte count, trading the real engine's
// variable-size header for a constant one; dataCap is the resulting
// usable payload per block.
const (
	maxPointers = 32
	headerSize  = 4 + maxPointers*4 // used-bytes count + up to 32 pointers
)

func dataCap(blockSize uint32) uint32 { return blockSize - headerSize }

// chainPointers returns the number of back-pointers block index n (0-based
// within the file, n>0) carries.
func chainPointers(n uint32) int {
	if n == 0 {
		return 0
	}
	return bits.TrailingZeros32(n) + 1
}

// chainTargets returns the indices the pointers of block n reference:
// n-2^0, n-2^1, ... n-2^(chainPointers(n)-1).
func chainTargets(n uint32) []uint32 {
	targets := make([]uint32, chainPointers(n))
	for i := range targets {
		targets[i] = n - (1 << uint(i))
	}
	return targets
}

// chainBlocks walks the skip-list starting from head (the highest-indexed
// block, i.e. the tail of the file) back to block 0, returning every
// block in the chain. size is the entry's ptrB (byte length), used only to
// detect the degenerate empty-file case.
func (fs *FS) chainBlocks(head uint32, size uint32) ([]uint32, error) {
	if head == invalidBlock || size == 0 {
		return nil, nil
	}
	blocks := []uint32{}
	cur := head
	for {
		blocks = append(blocks, cur)
		buf, err := fs.readBlock(cur)
		if err != nil {
			return nil, err
		}
		targets := decodePointers(buf)
		if len(targets) == 0 {
			break
		}
		cur = targets[0] // Follow the nearest predecessor to walk the full chain.
	}
	return blocks, nil
}

func decodePointers(buf []byte) []uint32 {
	var ptrs []uint32
	for i := 0; i < maxPointers; i++ {
		off := 4 + i*4
		v := binary.LittleEndian.Uint32(buf[off:])
		if v == invalidBlock {
			break
		}
		ptrs = append(ptrs, v)
	}
	return ptrs
}

// fileWriter accumulates appended bytes for a file being written
// sequentially (this engine does not support sparse/random-access writes,
// no partial in-place rewrites), writing each CTZ chain block as soon as
// it is full and the last, partial one on Finish.
type fileWriter struct {
	fs       *FS
	blockIdx uint32 // Index of the block currently being filled, 0-based.
	cur      []byte // Bytes buffered for the current block's payload.
	prior    []uint32
	size     uint32
}

func newFileWriter(fs *FS) *fileWriter {
	return &fileWriter{fs: fs}
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n := 0
	blockCap := int(dataCap(w.fs.blockSize))
	for len(p) > 0 {
		room := blockCap - len(w.cur)
		if room == 0 {
			if err := w.commitBlock(); err != nil {
				return n, err
			}
			room = blockCap
		}
		take := room
		if take > len(p) {
			take = len(p)
		}
		w.cur = append(w.cur, p[:take]...)
		p = p[take:]
		n += take
		w.size += uint32(take)
	}
	return n, nil
}

// commitBlock allocates a new block for the data accumulated so far,
// writes its back-pointers per the CTZ rule, and advances blockIdx.
func (w *fileWriter) commitBlock() error {
	block, err := w.fs.alloc.alloc()
	if err != nil {
		return err
	}
	buf := w.fs.blockBuf()
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(w.cur)))

	targets := chainTargets(w.blockIdx)
	for i := 0; i < maxPointers; i++ {
		off := 4 + i*4
		if i < len(targets) {
			// prior is indexed by file-block index, so targets[i] (itself
			// a file-block index) addresses it directly.
			binary.LittleEndian.PutUint32(buf[off:], w.prior[targets[i]])
		} else {
			binary.LittleEndian.PutUint32(buf[off:], invalidBlock)
		}
	}
	copy(buf[headerSize:], w.cur)
	if err := w.fs.writeBlock(block, buf); err != nil {
		return err
	}
	w.prior = append(w.prior, block)
	w.cur = w.cur[:0]
	w.blockIdx++
	return nil
}

// Finish flushes any buffered tail data and returns the resulting chain's
// head block and total size, suitable for a dirEntry's ptrA/ptrB.
func (w *fileWriter) Finish() (head uint32, size uint32, err error) {
	if len(w.cur) > 0 {
		if err := w.commitBlock(); err != nil {
			return invalidBlock, 0, err
		}
	}
	if len(w.prior) == 0 {
		return invalidBlock, 0, nil
	}
	return w.prior[len(w.prior)-1], w.size, nil
}

// fileReader sequentially reads a CTZ chain front to back. Since blocks
// are only linked backward, newFileReader first resolves the full forward order
// via chainBlocks, then reverses it to read in file order.
type fileReader struct {
	fs     *FS
	blocks []uint32
	pos    int
	buf    []byte
	off    int
}

func newFileReader(fs *FS, head uint32, size uint32) (*fileReader, error) {
	blocks, err := fs.chainBlocks(head, size)
	if err != nil {
		return nil, err
	}
	// chainBlocks walks tail-to-head; reverse for front-to-back reads.
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return &fileReader{fs: fs, blocks: blocks}, nil
}

func (r *fileReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.buf == nil {
			if r.pos >= len(r.blocks) {
				if n == 0 {
					return 0, io.EOF
				}
				return n, nil
			}
			buf, err := r.fs.readBlock(r.blocks[r.pos])
			if err != nil {
				return n, err
			}
			used := binary.LittleEndian.Uint32(buf[0:])
			r.buf = buf[headerSize : headerSize+used]
			r.off = 0
			r.pos++
		}
		copied := copy(p[n:], r.buf[r.off:])
		n += copied
		r.off += copied
		if r.off >= len(r.buf) {
			r.buf = nil
		}
	}
	return n, nil
}
