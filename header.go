package bootimg

// SupportedFields is a bitmap advertising which Header fields the current
// format honors. A format adapter calls Header.SetSupportedFields once,
// during read_header/get_header, before populating any field.
type SupportedFields uint32

const (
	FieldKernelAddress SupportedFields = 1 << iota
	FieldRamdiskAddress
	FieldSecondbootAddress
	FieldKernelTagsAddress
	FieldPageSize
	FieldBoardName
	FieldKernelCmdline
)

// FieldsBase is the set of fields every Android-layout format (plain,
// SEAndroid, Bump, MTK) honors.
const FieldsBase = FieldKernelAddress | FieldRamdiskAddress |
	FieldSecondbootAddress | FieldKernelTagsAddress | FieldPageSize |
	FieldBoardName | FieldKernelCmdline

// Allowed page sizes: any power of two in this set, matching the values
// the reference boot image tooling accepts for the header's page_size field.
var AllowedPageSizes = [...]uint32{2048, 4096, 8192, 16384, 32768, 65536, 131072}

// IsAllowedPageSize reports whether p is one of the allowed page sizes.
func IsAllowedPageSize(p uint32) bool {
	for _, v := range AllowedPageSizes {
		if v == p {
			return true
		}
	}
	return false
}

const (
	boardNameMax = 16
	cmdlineMax   = 512
)

// Header is the neutral, format-independent descriptor of a boot image's
// metadata. Every field is optional; a format adapter only ever reads the
// fields named in its own SupportedFields.
type Header struct {
	supported SupportedFields

	kernelAddress     *uint32
	ramdiskAddress    *uint32
	secondbootAddress *uint32
	kernelTagsAddress *uint32
	pageSize          *uint32
	boardName         *string
	kernelCmdline     *string
}

func (h *Header) SetSupportedFields(f SupportedFields) { h.supported = f }
func (h *Header) SupportedFields() SupportedFields      { return h.supported }

func (h *Header) supports(f SupportedFields) bool { return h.supported&f != 0 }

// KernelAddress / SetKernelAddress.
func (h *Header) KernelAddress() *uint32 { return h.kernelAddress }
func (h *Header) SetKernelAddress(v uint32) bool {
	if !h.supports(FieldKernelAddress) {
		return false
	}
	h.kernelAddress = &v
	return true
}

func (h *Header) RamdiskAddress() *uint32 { return h.ramdiskAddress }
func (h *Header) SetRamdiskAddress(v uint32) bool {
	if !h.supports(FieldRamdiskAddress) {
		return false
	}
	h.ramdiskAddress = &v
	return true
}

func (h *Header) SecondbootAddress() *uint32 { return h.secondbootAddress }
func (h *Header) SetSecondbootAddress(v uint32) bool {
	if !h.supports(FieldSecondbootAddress) {
		return false
	}
	h.secondbootAddress = &v
	return true
}

func (h *Header) KernelTagsAddress() *uint32 { return h.kernelTagsAddress }
func (h *Header) SetKernelTagsAddress(v uint32) bool {
	if !h.supports(FieldKernelTagsAddress) {
		return false
	}
	h.kernelTagsAddress = &v
	return true
}

func (h *Header) PageSize() *uint32 { return h.pageSize }
func (h *Header) SetPageSize(v uint32) bool {
	if !h.supports(FieldPageSize) || !IsAllowedPageSize(v) {
		return false
	}
	h.pageSize = &v
	return true
}

func (h *Header) BoardName() *string { return h.boardName }
func (h *Header) SetBoardName(v string) bool {
	if !h.supports(FieldBoardName) || len(v) >= boardNameMax {
		return false
	}
	h.boardName = &v
	return true
}

func (h *Header) KernelCmdline() *string { return h.kernelCmdline }
func (h *Header) SetKernelCmdline(v string) bool {
	if !h.supports(FieldKernelCmdline) || len(v) >= cmdlineMax {
		return false
	}
	h.kernelCmdline = &v
	return true
}

// NewHeader returns a zero-value Header with no supported fields; a format
// adapter must call SetSupportedFields before populating it.
func NewHeader() *Header {
	return &Header{}
}
