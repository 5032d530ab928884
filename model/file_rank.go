// Package model holds the document library file rank record and its byte
// layout. The record is a plain value; persistence belongs to whoever holds
// the buffers.
package model

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/ccfarm/seqbuf/buffer"
)

// FileRankSize is the encoded size of a FileRank:
// [file rank id 8][group id 8][company id 8][user id 8][create date 8][file entry id 8][active 1]
const FileRankSize = 6*8 + 1

// FileRank records that a user opened a file entry.
type FileRank struct {
	fileRankID  int64
	groupID     int64
	companyID   int64
	userID      int64
	createDate  time.Time
	fileEntryID int64
	active      bool
}

func (r *FileRank) PrimaryKey() int64 { return r.fileRankID }

func (r *FileRank) SetPrimaryKey(pk int64) { r.fileRankID = pk }

func (r *FileRank) FileRankID() int64 { return r.fileRankID }

func (r *FileRank) SetFileRankID(id int64) { r.fileRankID = id }

func (r *FileRank) GroupID() int64 { return r.groupID }

func (r *FileRank) SetGroupID(id int64) { r.groupID = id }

func (r *FileRank) CompanyID() int64 { return r.companyID }

func (r *FileRank) SetCompanyID(id int64) { r.companyID = id }

func (r *FileRank) UserID() int64 { return r.userID }

func (r *FileRank) SetUserID(id int64) { r.userID = id }

func (r *FileRank) CreateDate() time.Time { return r.createDate }

// SetCreateDate stores t with millisecond precision, the precision of the
// encoded form.
func (r *FileRank) SetCreateDate(t time.Time) {
	r.createDate = time.UnixMilli(t.UnixMilli())
}

func (r *FileRank) FileEntryID() int64 { return r.fileEntryID }

func (r *FileRank) SetFileEntryID(id int64) { r.fileEntryID = id }

func (r *FileRank) Active() bool { return r.active }

func (r *FileRank) SetActive(active bool) { r.active = active }

// MarshalTo writes the record at b's position. Nothing is written if b has
// fewer than FileRankSize bytes remaining.
func (r *FileRank) MarshalTo(b *buffer.ByteBuffer) error {
	var raw [FileRankSize]byte
	binary.LittleEndian.PutUint64(raw[0:], uint64(r.fileRankID))
	binary.LittleEndian.PutUint64(raw[8:], uint64(r.groupID))
	binary.LittleEndian.PutUint64(raw[16:], uint64(r.companyID))
	binary.LittleEndian.PutUint64(raw[24:], uint64(r.userID))
	binary.LittleEndian.PutUint64(raw[32:], uint64(r.createDate.UnixMilli()))
	binary.LittleEndian.PutUint64(raw[40:], uint64(r.fileEntryID))
	if r.active {
		raw[48] = 1
	}

	if _, err := b.Write(raw[:]); err != nil {
		return errors.Wrap(err, "marshal file rank")
	}
	return nil
}

// UnmarshalFrom reads a record at b's position and advances past it.
func (r *FileRank) UnmarshalFrom(b *buffer.ByteBuffer) error {
	if b.Remaining() < FileRankSize {
		return errors.Wrapf(buffer.ErrBufferUnderflow, "unmarshal file rank: %d bytes remaining", b.Remaining())
	}

	var raw [FileRankSize]byte
	if _, err := b.Read(raw[:]); err != nil {
		return errors.Wrap(err, "unmarshal file rank")
	}
	r.fileRankID = int64(binary.LittleEndian.Uint64(raw[0:]))
	r.groupID = int64(binary.LittleEndian.Uint64(raw[8:]))
	r.companyID = int64(binary.LittleEndian.Uint64(raw[16:]))
	r.userID = int64(binary.LittleEndian.Uint64(raw[24:]))
	r.createDate = time.UnixMilli(int64(binary.LittleEndian.Uint64(raw[32:])))
	r.fileEntryID = int64(binary.LittleEndian.Uint64(raw[40:]))
	r.active = raw[48] != 0
	return nil
}

// Encode returns the record in a buffer flipped for reading.
func (r *FileRank) Encode() *buffer.ByteBuffer {
	b, _ := buffer.New(FileRankSize)
	_ = r.MarshalTo(b)
	b.Flip()
	return b
}
