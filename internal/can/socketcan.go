package can

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"can-session-logger/internal/models"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const (
	canRaw            = 1
	solCanRaw         = 101
	canRawFilter      = 1
	canRawRecvOwnMsgs = 4

	canFrameSize = 16 // struct can_frame

	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
	canErrFlag = 0x20000000
	canEffMask = 0x1FFFFFFF
	canSffMask = 0x7FF

	socketSendTimeout = time.Second
)

// socketCANTransport is a raw AF_CAN socket bound to one interface. The
// socket is non-blocking and wrapped in an *os.File so the runtime poller
// provides read deadlines and Close wakes a pending Read.
type socketCANTransport struct {
	file   *os.File
	ifname string
}

func openSocketCAN(ifname string) (*socketCANTransport, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to find interface %s: %w", ifname, err)
	}
	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		return nil, fmt.Errorf("interface %s (%s) is down", ifname, link.Type())
	}

	socket, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, canRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to create CAN socket: %w", err)
	}

	// Own frames are looped back so a session sees what it transmits, as on the virtual bus
	if err := unix.SetsockoptInt(socket, solCanRaw, canRawRecvOwnMsgs, 1); err != nil {
		unix.Close(socket)
		return nil, fmt.Errorf("failed to enable own-message loopback: %w", err)
	}

	if err := unix.Bind(socket, &unix.SockaddrCAN{Ifindex: attrs.Index}); err != nil {
		unix.Close(socket)
		return nil, fmt.Errorf("failed to bind socket: %w", err)
	}

	return &socketCANTransport{
		file:   os.NewFile(uintptr(socket), "can:"+ifname),
		ifname: ifname,
	}, nil
}

func (t *socketCANTransport) Receive(timeout time.Duration) (models.Frame, error) {
	if err := t.file.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return models.Frame{}, ErrTransportClosed
		}
		return models.Frame{}, fmt.Errorf("failed to set read deadline: %w", err)
	}

	buf := make([]byte, canFrameSize)
	n, err := t.file.Read(buf)
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return models.Frame{}, ErrReceiveTimeout
	case errors.Is(err, os.ErrClosed):
		return models.Frame{}, ErrTransportClosed
	case err != nil:
		return models.Frame{}, fmt.Errorf("read error on %s: %w", t.ifname, err)
	}

	if n < canFrameSize {
		return models.Frame{}, fmt.Errorf("incomplete CAN frame received on %s: %d bytes", t.ifname, n)
	}

	frame := decodeCANFrame(buf)
	frame.Timestamp = models.Timestamp(time.Now())
	return frame, nil
}

func (t *socketCANTransport) Send(frame models.Frame) error {
	if err := t.file.SetWriteDeadline(time.Now().Add(socketSendTimeout)); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return ErrTransportClosed
		}
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	_, err := t.file.Write(encodeCANFrame(frame))
	switch {
	case errors.Is(err, os.ErrClosed):
		return ErrTransportClosed
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, unix.ENOBUFS):
		return fmt.Errorf("%w on %s: %v", ErrQueueFull, t.ifname, err)
	case err != nil:
		return fmt.Errorf("write error on %s: %w", t.ifname, err)
	}
	return nil
}

// SetFilter installs exact-match kernel filters for ids
func (t *socketCANTransport) SetFilter(ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}

	filters := make([]unix.CanFilter, 0, len(ids))
	for _, id := range ids {
		mask := uint32(canSffMask | canEffFlag)
		if id > canSffMask {
			id |= canEffFlag
			mask = canEffMask | canEffFlag
		}
		filters = append(filters, unix.CanFilter{Id: id, Mask: mask})
	}

	conn, err := t.file.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to access socket: %w", err)
	}

	var setErr error
	err = conn.Control(func(fd uintptr) {
		setErr = unix.SetsockoptCanRawFilter(int(fd), solCanRaw, canRawFilter, filters)
	})
	if err != nil {
		return fmt.Errorf("failed to access socket: %w", err)
	}
	if setErr != nil {
		return fmt.Errorf("failed to set filter: %w", setErr)
	}
	return nil
}

func (t *socketCANTransport) Close() error {
	return t.file.Close()
}

// encodeCANFrame lays a frame out as struct can_frame (little-endian id, dlc, 3 pad bytes, data).
func encodeCANFrame(f models.Frame) []byte {
	id := f.ArbitrationID
	if f.IsExtendedID {
		id = id&canEffMask | canEffFlag
	} else {
		id &= canSffMask
	}
	if f.IsRemoteFrame {
		id |= canRtrFlag
	}
	if f.IsErrorFrame {
		id |= canErrFlag
	}

	buf := make([]byte, canFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.DLC
	copy(buf[8:16], f.Data)
	return buf
}

func decodeCANFrame(buf []byte) models.Frame {
	raw := binary.LittleEndian.Uint32(buf[0:4])

	frame := models.Frame{
		IsExtendedID:  raw&canEffFlag != 0,
		IsRemoteFrame: raw&canRtrFlag != 0,
		IsErrorFrame:  raw&canErrFlag != 0,
	}
	if frame.IsExtendedID {
		frame.ArbitrationID = raw & canEffMask
	} else {
		frame.ArbitrationID = raw & canSffMask
	}

	dlc := buf[4]
	if dlc > models.MaxDataLength {
		dlc = models.MaxDataLength
	}
	frame.DLC = dlc
	if !frame.IsRemoteFrame {
		frame.Data = make([]byte, dlc)
		copy(frame.Data, buf[8:8+int(dlc)])
	}
	return frame
}
