/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package ipc

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"bitbucket.org/avd/go-ipc/mmf"
	"bitbucket.org/avd/go-ipc/shm"

	"stash.kopano.io/kgol/contactrelay/relay"
)

// Layout of the shared status object:
//
//	header  [0, 128)     version (uint8), payload length (uint32), little endian
//	payload [128, ...)   JSON encoded relay.Status followed by its sha256
const (
	shmStatusProjectID  = "relayd"
	shmStatusTotalSize  = 64 * 1024 // 64 KiB
	shmStatusHeaderSize = 128
	shmStatusVersion1   = uint8(1)

	shmStatusMaxPayload = shmStatusTotalSize - shmStatusHeaderSize - sha256.Size
)

type shmStatusHeader struct {
	Version     uint8
	PayloadSize uint32
}

func ftok(s, id string) string {
	h := sha256.New()
	h.Write([]byte(s))
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:8])
}

type shmStatus struct {
	statePath string
	projectID string
}

func (s *shmStatus) name() string {
	projectID := s.projectID
	if projectID == "" {
		projectID = shmStatusProjectID
	}
	return projectID + "-status." + ftok(s.statePath, projectID)
}

func (s *shmStatus) clear() error {
	return shm.DestroyMemoryObject(s.name())
}

func (s *shmStatus) set(status *relay.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if len(payload) > shmStatusMaxPayload {
		return fmt.Errorf("status too large: %d bytes", len(payload))
	}
	signature := sha256.Sum256(payload)

	obj, _, err := shm.NewMemoryObjectSize(s.name(), os.O_CREATE|os.O_WRONLY, 0600, shmStatusTotalSize)
	if err != nil {
		return fmt.Errorf("failed to open shm for status: %w", err)
	}
	defer obj.Close()

	region, err := mmf.NewMemoryRegion(obj, mmf.MEM_READWRITE, 0, shmStatusTotalSize)
	if err != nil {
		return fmt.Errorf("failed to map status region: %w", err)
	}
	defer region.Close()

	writer := mmf.NewMemoryRegionWriter(region)

	// Payload first, then header and signature so a reader never accepts a
	// half written payload.
	if err = writeAt(writer, payload, shmStatusHeaderSize); err != nil {
		return fmt.Errorf("failed to write status payload: %w", err)
	}
	if err = region.Flush(false); err != nil {
		return err
	}

	var header bytes.Buffer
	if err = binary.Write(&header, binary.LittleEndian, &shmStatusHeader{
		Version:     shmStatusVersion1,
		PayloadSize: uint32(len(payload)),
	}); err != nil {
		return fmt.Errorf("failed to encode status header: %w", err)
	}
	if err = writeAt(writer, header.Bytes(), 0); err != nil {
		return fmt.Errorf("failed to write status header: %w", err)
	}

	if err = writeAt(writer, signature[:], shmStatusHeaderSize+int64(len(payload))); err != nil {
		return fmt.Errorf("failed to write status signature: %w", err)
	}

	return region.Flush(false)
}

func (s *shmStatus) get() (*relay.Status, error) {
	obj, err := shm.NewMemoryObject(s.name(), os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open shm for status: %w", err)
	}
	defer obj.Close()

	region, err := mmf.NewMemoryRegion(obj, mmf.MEM_READ_ONLY, 0, shmStatusTotalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to map status region: %w", err)
	}
	defer region.Close()

	reader := mmf.NewMemoryRegionReader(region)

	var header shmStatusHeader
	if err = binary.Read(io.NewSectionReader(reader, 0, shmStatusHeaderSize), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read status header: %w", err)
	}

	switch header.Version {
	case shmStatusVersion1:
	case 0:
		return nil, ErrStatusNotAvailable
	default:
		return nil, fmt.Errorf("unknown status header version: %v", header.Version)
	}
	if header.PayloadSize > shmStatusMaxPayload {
		return nil, fmt.Errorf("invalid status payload size: %d", header.PayloadSize)
	}

	data := make([]byte, int(header.PayloadSize)+sha256.Size)
	if _, err = reader.ReadAt(data, shmStatusHeaderSize); err != nil {
		return nil, fmt.Errorf("failed to read status payload: %w", err)
	}
	payload, signature := data[:header.PayloadSize], data[header.PayloadSize:]

	expected := sha256.Sum256(payload)
	if !bytes.Equal(expected[:], signature) {
		return nil, errors.New("status signature mismatch")
	}

	status := &relay.Status{}
	if err = json.Unmarshal(payload, status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}

	return status, nil
}

func writeAt(w io.WriterAt, p []byte, off int64) error {
	n, err := w.WriteAt(p, off)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return err
}
