package assets

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

const spirvHeaderWords = 5

var (
	ErrNotSPIRV        = errors.New("not a SPIR-V module")
	ErrMisalignedSPIRV = errors.New("SPIR-V size is not a multiple of 4 bytes")
	ErrTruncatedSPIRV  = errors.New("SPIR-V module shorter than its header")
)

type Shader struct {
	Name     string
	Path     string
	Code     []uint32
	LoadedAt time.Time
}

// Version returns the major and minor SPIR-V version from the header.
func (s *Shader) Version() (uint32, uint32) {
	v := s.Code[1]
	return (v >> 16) & 0xFF, (v >> 8) & 0xFF
}

// SizeInBytes as expected by VkShaderModuleCreateInfo::codeSize.
func (s *Shader) SizeInBytes() int {
	return len(s.Code) * 4
}

func IsSPIRVFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".spv")
}

func LoadSPIRV(path string) (*Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}
	code, err := DecodeSPIRV(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return &Shader{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:     path,
		Code:     code,
		LoadedAt: time.Now(),
	}, nil
}

// DecodeSPIRV turns a SPIR-V binary into words in host order. Modules
// written with the opposite endianness are swapped.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, errors.Wrapf(ErrMisalignedSPIRV, "%d bytes", len(data))
	}
	if len(data) < spirvHeaderWords*4 {
		return nil, errors.Wrapf(ErrTruncatedSPIRV, "%d bytes", len(data))
	}

	code := bytesToBytecode(data)
	switch code[0] {
	case SPIRVMagic:
	case swapWord(SPIRVMagic):
		for i, w := range code {
			code[i] = swapWord(w)
		}
	default:
		return nil, errors.Wrapf(ErrNotSPIRV, "magic 0x%08X", code[0])
	}
	return code, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteIndex := i * 4
		byteCode[i] = uint32(b[byteIndex]) |
			uint32(b[byteIndex+1])<<8 |
			uint32(b[byteIndex+2])<<16 |
			uint32(b[byteIndex+3])<<24
	}
	return byteCode
}

func swapWord(w uint32) uint32 {
	return w>>24 | (w>>8)&0xFF00 | (w<<8)&0xFF0000 | w<<24
}
