// Package regionfile находит файлы регионов мира r.<rx>.<rz>.<ext>,
// каждый из которых покрывает 32×32 чанка (512×512 блоков).
package regionfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// DefaultExtension - расширение файлов регионов формата Anvil.
const DefaultExtension = "mca"

// File - файл региона на диске.
type File struct {
	RX, RZ int
	Path   string
	ext    string
}

// Name возвращает имя файла r.<rx>.<rz>.<ext>.
func (f File) Name() string {
	return fmt.Sprintf("r.%d.%d.%s", f.RX, f.RZ, f.ext)
}

// EntryName возвращает имя записи в архиве: region/r.<rx>.<rz>.<ext>.
func (f File) EntryName() string {
	return "region/" + f.Name()
}

// Locator перечисляет файлы регионов мира.
type Locator struct {
	ext string
}

// NewLocator создаёт поиск файлов с заданным расширением (без точки).
func NewLocator(ext string) *Locator {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExtension
	}
	return &Locator{ext: ext}
}

// ParseName разбирает имя r.<rx>.<rz>.<ext>. Второй результат false для
// любых других имён.
func (l *Locator) ParseName(name string) (rx, rz int, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 4 || parts[0] != "r" || parts[3] != l.ext {
		return 0, 0, false
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	z, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}
	return x, z, true
}

// List перечисляет файлы регионов мира. Отсутствие каталога region даёт пустой
// список; файлы с неподходящими именами пропускаются.
func (l *Locator) List(h *world.Handle) ([]File, error) {
	dir := h.RegionDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение каталога регионов %s: %w", dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		rx, rz, ok := l.ParseName(e.Name())
		if !ok {
			logging.Trace("Пропущен файл %s в %s", e.Name(), dir)
			continue
		}
		files = append(files, File{RX: rx, RZ: rz, Path: filepath.Join(dir, e.Name()), ext: l.ext})
	}
	sortFiles(files)
	return files, nil
}

// Intersecting возвращает файлы регионов, попадающие в прямоугольник
// координат регионов хотя бы одного из кубов. Результат без повторов,
// отсортирован по (rx, rz).
func (l *Locator) Intersecting(h *world.Handle, regions []world.Cuboid) ([]File, error) {
	if len(regions) == 0 {
		return nil, nil
	}
	all, err := l.List(h)
	if err != nil {
		return nil, err
	}

	type box struct{ lo, hi vec.Vec2 }
	boxes := make([]box, 0, len(regions))
	for _, r := range regions {
		lo, hi := r.RegionBounds()
		boxes = append(boxes, box{lo: lo, hi: hi})
	}

	var out []File
	for _, f := range all {
		for _, b := range boxes {
			if f.RX >= b.lo.X && f.RX <= b.hi.X && f.RZ >= b.lo.Z && f.RZ <= b.hi.Z {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].RX != files[j].RX {
			return files[i].RX < files[j].RX
		}
		return files[i].RZ < files[j].RZ
	})
}
