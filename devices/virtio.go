package devices

import (
	"encoding/binary"
	"io"
)

// Legacy VirtIO-MMIO register offsets (pre-1.0 legacy layout).
const (
	virtioMagicValue     = 0x000
	virtioVersion        = 0x004
	virtioDeviceID       = 0x008
	virtioVendorID       = 0x00c
	virtioHostFeatures   = 0x010
	virtioGuestFeatures  = 0x020
	virtioGuestPageSize  = 0x028
	virtioQueueSel       = 0x030
	virtioQueueNumMax    = 0x034
	virtioQueueNum       = 0x038
	virtioQueueAlign     = 0x03c
	virtioQueuePFN       = 0x040
	virtioQueueNotify    = 0x050
	virtioInterruptState = 0x060
	virtioInterruptAck   = 0x064
	virtioStatus         = 0x070

	virtioMagic      = 0x74726976 // "virt"
	virtioDeviceBlk  = 2
	virtioQueueSize  = 8
	virtioSectorSize = 512

	descFNext  = 1
	descFWrite = 2

	// VirtIOIRQ is this platform's PLIC source id for VirtIO.
	VirtIOIRQ = 1
)

// dram is the subset of *mem.Memory the VirtIO device needs for descriptor-
// chain DMA. Declared locally (rather than importing mem) to keep devices
// independent of the DRAM implementation's concrete type.
type dram interface {
	Bytes(addr, n uint64) []byte
}

// VirtIOBlk is a legacy (pre-1.0, single-page-queue) VirtIO-MMIO block
// device. A single virtqueue of descriptors is walked per QueueNotify,
// servicing VIRTIO_BLK_T_IN/OUT requests against an in-memory or
// file-backed sector image.
type VirtIOBlk struct {
	ram  dram
	plic *PLIC

	backing  io.ReaderAt
	writer   io.WriterAt
	capacity uint64 // sectors

	hostFeatures uint32
	pageSize     uint32
	queuePFN     uint32
	queueNum     uint32
	status       uint32
	intStatus    uint32
	lastAvail    uint16
}

// NewVirtIOBlk creates a block device of capacity bytes backed by backing (which
// may additionally implement io.WriterAt for persistence; read-only images
// only need io.ReaderAt).
func NewVirtIOBlk(ram dram, plic *PLIC, backing io.ReaderAt, capacity uint64) *VirtIOBlk {
	v := &VirtIOBlk{
		ram:      ram,
		plic:     plic,
		backing:  backing,
		capacity: capacity / virtioSectorSize,
		queueNum: virtioQueueSize,
	}
	if w, ok := backing.(io.WriterAt); ok {
		v.writer = w
	}
	return v
}

// ReadAt implements bus.Device.
func (v *VirtIOBlk) ReadAt(offset uint64, size uint8) (uint64, error) {
	switch offset {
	case virtioMagicValue:
		return virtioMagic, nil
	case virtioVersion:
		return 1, nil
	case virtioDeviceID:
		return virtioDeviceBlk, nil
	case virtioVendorID:
		return 0, nil
	case virtioHostFeatures:
		return uint64(v.hostFeatures), nil
	case virtioQueueNumMax:
		return virtioQueueSize, nil
	case virtioInterruptState:
		return uint64(v.intStatus), nil
	case virtioStatus:
		return uint64(v.status), nil
	case 0x100: // config space: 64-bit sector capacity
		return v.capacity, nil
	default:
		return 0, nil
	}
}

// WriteAt implements bus.Device.
func (v *VirtIOBlk) WriteAt(offset uint64, size uint8, value uint64) error {
	switch offset {
	case virtioGuestFeatures:
	case virtioGuestPageSize:
		v.pageSize = uint32(value)
	case virtioQueueSel:
		// single queue (index 0); nothing to switch
	case virtioQueueNum:
		v.queueNum = uint32(value)
	case virtioQueuePFN:
		v.queuePFN = uint32(value)
		v.lastAvail = 0
	case virtioQueueNotify:
		v.processQueue()
	case virtioInterruptAck:
		v.intStatus &^= uint32(value)
	case virtioStatus:
		v.status = uint32(value)
		if v.status == 0 {
			v.queuePFN = 0
		}
	}
	return nil
}

// Tick re-derives the PLIC pending bit for this device's interrupt source.
func (v *VirtIOBlk) Tick() {
	v.plic.SetPending(VirtIOIRQ, v.intStatus != 0)
}

// legacy queue layout: descriptor table, then avail ring, then (page-
// aligned) used ring, all within one guest page starting at queuePFN*pageSize.
func (v *VirtIOBlk) queueBase() uint64 {
	return uint64(v.queuePFN) * uint64(v.pageSize)
}

func (v *VirtIOBlk) descAddr(idx uint16) uint64 {
	return v.queueBase() + uint64(idx)*16
}

func (v *VirtIOBlk) availBase() uint64 {
	return v.queueBase() + 16*uint64(v.queueNum)
}

func (v *VirtIOBlk) usedBase() uint64 {
	align := uint64(4096)
	avail := v.availBase() + 4 + 2*uint64(v.queueNum) + 2
	return (avail + align - 1) &^ (align - 1)
}

type vqDesc struct {
	addr  uint64
	len   uint32
	flags uint16
	next  uint16
}

func (v *VirtIOBlk) readDesc(idx uint16) vqDesc {
	b := v.ram.Bytes(v.descAddr(idx), 16)
	return vqDesc{
		addr:  binary.LittleEndian.Uint64(b[0:8]),
		len:   binary.LittleEndian.Uint32(b[8:12]),
		flags: binary.LittleEndian.Uint16(b[12:14]),
		next:  binary.LittleEndian.Uint16(b[14:16]),
	}
}

func (v *VirtIOBlk) availIdx() uint16 {
	return binary.LittleEndian.Uint16(v.ram.Bytes(v.availBase()+2, 2))
}

func (v *VirtIOBlk) availRing(i uint16) uint16 {
	off := v.availBase() + 4 + uint64(i&uint16(v.queueNum-1))*2
	return binary.LittleEndian.Uint16(v.ram.Bytes(off, 2))
}

func (v *VirtIOBlk) pushUsed(descIdx uint16, length uint32) {
	usedIdxAddr := v.usedBase() + 2
	idx := binary.LittleEndian.Uint16(v.ram.Bytes(usedIdxAddr, 2))
	ring := v.usedBase() + 4 + uint64(idx&uint16(v.queueNum-1))*8
	binary.LittleEndian.PutUint32(v.ram.Bytes(ring, 4), uint32(descIdx))
	binary.LittleEndian.PutUint32(v.ram.Bytes(ring+4, 4), length)
	binary.LittleEndian.PutUint16(v.ram.Bytes(usedIdxAddr, 2), idx+1)
	v.intStatus |= 1
}

// blkRequest is the VIRTIO_BLK request header: type, reserved, sector.
type blkRequest struct {
	kind   uint32
	sector uint64
}

const (
	blkTypeIn  = 0 // read
	blkTypeOut = 1 // write
)

// processQueue walks every newly-available descriptor chain: [header-in][data][status-out].
func (v *VirtIOBlk) processQueue() {
	if v.queuePFN == 0 {
		return
	}
	idx := v.availIdx()
	for v.lastAvail != idx {
		headIdx := v.availRing(v.lastAvail)
		v.serviceChain(headIdx)
		v.lastAvail++
	}
}

func (v *VirtIOBlk) serviceChain(headIdx uint16) {
	head := v.readDesc(headIdx)
	hdr := v.ram.Bytes(head.addr, 16)
	req := blkRequest{
		kind:   binary.LittleEndian.Uint32(hdr[0:4]),
		sector: binary.LittleEndian.Uint64(hdr[8:16]),
	}

	if head.flags&descFNext == 0 {
		return
	}
	dataIdx := head.next
	data := v.readDesc(dataIdx)

	status := byte(0)
	switch req.kind {
	case blkTypeIn:
		buf := v.ram.Bytes(data.addr, uint64(data.len))
		if _, err := v.backing.ReadAt(buf, int64(req.sector)*virtioSectorSize); err != nil && err != io.EOF {
			status = 1
		}
	case blkTypeOut:
		buf := v.ram.Bytes(data.addr, uint64(data.len))
		if v.writer != nil {
			if _, err := v.writer.WriteAt(buf, int64(req.sector)*virtioSectorSize); err != nil {
				status = 1
			}
		} else {
			status = 1
		}
	default:
		status = 2
	}

	length := data.len
	if data.flags&descFNext != 0 {
		statusDesc := v.readDesc(data.next)
		v.ram.Bytes(statusDesc.addr, 1)[0] = status
		length += statusDesc.len
	}

	v.pushUsed(headIdx, length)
}
