package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Tags contains track metadata to be written to the audio file
type Tags struct {
	Title     string
	Artist    string
	Album     string
	Cover     []byte // optional front cover image
	CoverMIME string // defaults to image/jpeg
}

const headerSize = 10

// Encode builds an ID3v2.4 tag holding t.
func Encode(t Tags) []byte {
	frames := &bytes.Buffer{}

	if t.Title != "" {
		writeTextFrame(frames, "TIT2", t.Title)
	}
	if t.Artist != "" {
		writeTextFrame(frames, "TPE1", t.Artist)
	}
	if t.Album != "" {
		writeTextFrame(frames, "TALB", t.Album)
	}
	if len(t.Cover) > 0 {
		writeCoverFrame(frames, t.Cover, t.CoverMIME)
	}

	tag := &bytes.Buffer{}
	tag.WriteString("ID3")
	tag.WriteByte(0x04) // version 2.4.0
	tag.WriteByte(0x00) // revision
	tag.WriteByte(0x00) // flags
	writeSynchsafe(tag, uint32(frames.Len()))
	tag.Write(frames.Bytes())

	return tag.Bytes()
}

// Strip returns audio without a leading ID3v2 tag.
func Strip(audio []byte) []byte {
	if len(audio) < headerSize || !bytes.HasPrefix(audio, []byte("ID3")) {
		return audio
	}

	size := int(readSynchsafe(audio[6:10])) + headerSize
	if audio[5]&0x10 != 0 { // footer present
		size += headerSize
	}
	if size > len(audio) {
		return audio
	}

	return audio[size:]
}

// WriteFile replaces the ID3v2 tag of the MP3 at path with t.
func WriteFile(path string, t Tags) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}

	out := append(Encode(t), Strip(audio)...)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tag-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write tagged audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tagged audio: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// writeTextFrame writes a UTF-8 text information frame
func writeTextFrame(buf *bytes.Buffer, frameID, text string) {
	frameData := &bytes.Buffer{}
	frameData.WriteByte(0x03) // UTF-8
	frameData.WriteString(text)

	writeFrame(buf, frameID, frameData.Bytes())
}

// writeCoverFrame writes an attached picture (APIC) frame
func writeCoverFrame(buf *bytes.Buffer, image []byte, mimeType string) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	frameData := &bytes.Buffer{}
	frameData.WriteByte(0x00) // ISO-8859-1
	frameData.WriteString(mimeType)
	frameData.WriteByte(0x00)
	frameData.WriteByte(0x03) // front cover
	frameData.WriteByte(0x00) // empty description
	frameData.Write(image)

	writeFrame(buf, "APIC", frameData.Bytes())
}

func writeFrame(buf *bytes.Buffer, frameID string, data []byte) {
	buf.WriteString(frameID)
	// v2.4 frame sizes are synchsafe
	writeSynchsafe(buf, uint32(len(data)))
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	buf.Write(data)
}

// writeSynchsafe writes a synchsafe integer (28-bit integer in 4 bytes)
func writeSynchsafe(buf *bytes.Buffer, value uint32) {
	buf.WriteByte(byte((value >> 21) & 0x7F))
	buf.WriteByte(byte((value >> 14) & 0x7F))
	buf.WriteByte(byte((value >> 7) & 0x7F))
	buf.WriteByte(byte(value & 0x7F))
}

func readSynchsafe(b []byte) uint32 {
	v := binary.BigEndian.Uint32(b)
	return (v&0x7F000000)>>3 | (v&0x7F0000)>>2 | (v&0x7F00)>>1 | v&0x7F
}
