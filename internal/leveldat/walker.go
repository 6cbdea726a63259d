package leveldat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
)

// Типы тегов NBT.
const (
	tagEnd byte = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
	tagIntArray
	tagLongArray
)

const maxDepth = 512

var errTruncated = errors.New("leveldat: неожиданный конец данных NBT")

// cursor - позиция в несжатом дереве NBT.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.buf) {
		return errTruncated
	}
	return nil
}

func (c *cursor) readByte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readInt32() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(c.buf[c.pos:]))
	c.pos += 4
	return v, nil
}

func (c *cursor) readString() (string, error) {
	if err := c.need(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(c.buf[c.pos:]))
	c.pos += 2
	if err := c.need(n); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+n])
	c.pos += n
	return s, nil
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

func (c *cursor) skipArray(elem int) error {
	n, err := c.readInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("leveldat: отрицательная длина массива %d", n)
	}
	return c.skip(int(n) * elem)
}

// skipPayload пропускает содержимое тега типа t.
func (c *cursor) skipPayload(t byte, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("leveldat: превышена глубина вложенности %d", maxDepth)
	}
	switch t {
	case tagByte:
		return c.skip(1)
	case tagShort:
		return c.skip(2)
	case tagInt, tagFloat:
		return c.skip(4)
	case tagLong, tagDouble:
		return c.skip(8)
	case tagByteArray:
		return c.skipArray(1)
	case tagIntArray:
		return c.skipArray(4)
	case tagLongArray:
		return c.skipArray(8)
	case tagString:
		_, err := c.readString()
		return err
	case tagList:
		elem, err := c.readByte()
		if err != nil {
			return err
		}
		n, err := c.readInt32()
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			if err := c.skipPayload(elem, depth+1); err != nil {
				return err
			}
		}
		return nil
	case tagCompound:
		for {
			ft, err := c.readByte()
			if err != nil {
				return err
			}
			if ft == tagEnd {
				return nil
			}
			if _, err := c.readString(); err != nil {
				return err
			}
			if err := c.skipPayload(ft, depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("leveldat: неизвестный тип тега %d", t)
	}
}

// findDataCompound возвращает позицию начала содержимого тега Data в корне.
func findDataCompound(c *cursor) (int, error) {
	t, err := c.readByte()
	if err != nil {
		return 0, err
	}
	if t != tagCompound {
		return 0, fmt.Errorf("leveldat: корневой тег типа %d, ожидался составной", t)
	}
	if _, err := c.readString(); err != nil {
		return 0, err
	}
	for {
		ft, err := c.readByte()
		if err != nil {
			return 0, err
		}
		if ft == tagEnd {
			return 0, ErrNoData
		}
		name, err := c.readString()
		if err != nil {
			return 0, err
		}
		if name == "Data" && ft == tagCompound {
			return c.pos, nil
		}
		if err := c.skipPayload(ft, 1); err != nil {
			return 0, err
		}
	}
}

// PatchRaw заменяет Data.SpawnX/Y/Z в несжатом дереве NBT. Значения
// существующих целочисленных полей переписываются на месте, отсутствующие
// поля добавляются перед концом Data. Прочие байты не меняются.
func PatchRaw(raw []byte, spawn vec.Vec3) ([]byte, error) {
	c := &cursor{buf: raw}
	if _, err := findDataCompound(c); err != nil {
		return nil, err
	}

	want := map[string]int32{
		"SpawnX": int32(spawn.X),
		"SpawnY": int32(spawn.Y),
		"SpawnZ": int32(spawn.Z),
	}
	offsets := make(map[string]int, 3)
	end := -1
	for end < 0 {
		start := c.pos
		ft, err := c.readByte()
		if err != nil {
			return nil, err
		}
		if ft == tagEnd {
			end = start
			break
		}
		name, err := c.readString()
		if err != nil {
			return nil, err
		}
		if _, ok := want[name]; ok {
			if ft != tagInt {
				return nil, fmt.Errorf("leveldat: поле %s имеет тип %d, ожидался TAG_Int", name, ft)
			}
			offsets[name] = c.pos
		}
		if err := c.skipPayload(ft, 2); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, len(raw)+3*(1+2+6+4))
	out = append(out, raw[:end]...)
	for name, off := range offsets {
		binary.BigEndian.PutUint32(out[off:], uint32(want[name]))
	}
	for _, name := range []string{"SpawnX", "SpawnY", "SpawnZ"} {
		if _, ok := offsets[name]; ok {
			continue
		}
		out = append(out, tagInt)
		out = binary.BigEndian.AppendUint16(out, uint16(len(name)))
		out = append(out, name...)
		out = binary.BigEndian.AppendUint32(out, uint32(want[name]))
	}
	out = append(out, raw[end:]...)
	return out, nil
}
