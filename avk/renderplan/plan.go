// Package renderplan reads render pass descriptions from TOML files so
// attachment usages can be tried out without writing Go.
//
//	[[attachment]]
//	name   = "albedo"
//	format = "R8G8B8A8_UNORM"
//	usages = ["color(0)", "input(0)"]
//
//	[[dependency]]
//	src = "external"
//	dst = "0"
//	src_stages = ["color_attachment_output"]
//	dst_stages = ["color_attachment_output"]
//	dst_access = ["color_attachment_write"]
package renderplan

import (
	"io"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/pelletier/go-toml/v2"

	"github.com/cg-tuwien/auto-vk/avk/vulkan"
)

var ErrInvalidPlan = errors.New("invalid render pass plan")

type AttachmentSpec struct {
	Name          string   `toml:"name"`
	Format        string   `toml:"format"`
	Samples       uint32   `toml:"samples"`
	Load          string   `toml:"load"`
	Store         string   `toml:"store"`
	StencilLoad   string   `toml:"stencil_load"`
	StencilStore  string   `toml:"stencil_store"`
	InitialLayout string   `toml:"initial_layout"`
	FinalLayout   string   `toml:"final_layout"`
	Usages        []string `toml:"usages"`
}

type DependencySpec struct {
	Src       string   `toml:"src"`
	Dst       string   `toml:"dst"`
	SrcStages []string `toml:"src_stages"`
	DstStages []string `toml:"dst_stages"`
	SrcAccess []string `toml:"src_access"`
	DstAccess []string `toml:"dst_access"`
	ByRegion  bool     `toml:"by_region"`
}

type File struct {
	Attachments  []AttachmentSpec `toml:"attachment"`
	Dependencies []DependencySpec `toml:"dependency"`
}

func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening plan %s", path)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*File, error) {
	var file File
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "decoding render pass plan")
	}
	return &file, nil
}

// Names of the attachments, falling back to their index.
func (f *File) Names() []string {
	names := make([]string, len(f.Attachments))
	for i, a := range f.Attachments {
		names[i] = a.Name
		if names[i] == "" {
			names[i] = strconv.Itoa(i)
		}
	}
	return names
}

// Build converts the file into the arguments of vulkan.PlanRenderpass.
func (f *File) Build() ([]vulkan.Attachment, []vulkan.SubpassDependency, error) {
	attachments := make([]vulkan.Attachment, len(f.Attachments))
	for i, spec := range f.Attachments {
		a, err := spec.build()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "attachment %d (%s)", i, spec.Name)
		}
		attachments[i] = a
	}

	var deps []vulkan.SubpassDependency
	for i, spec := range f.Dependencies {
		d, err := spec.build()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "dependency %d", i)
		}
		deps = append(deps, d)
	}
	return attachments, deps, nil
}

// Plan builds and plans in one go.
func (f *File) Plan() (*vulkan.RenderpassPlan, error) {
	attachments, deps, err := f.Build()
	if err != nil {
		return nil, err
	}
	return vulkan.PlanRenderpass(attachments, deps)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (s AttachmentSpec) build() (vulkan.Attachment, error) {
	var a vulkan.Attachment
	var err error

	if a.Format, err = lookup(formats, "format", s.Format); err != nil {
		return a, err
	}
	a.Samples, err = sampleCount(s.Samples)
	if err != nil {
		return a, err
	}

	// depth contents are rarely needed after the pass
	defaultStore := "store"
	if vulkan.IsDepthFormat(a.Format) {
		defaultStore = "dont_care"
	}
	if a.LoadOp, err = lookup(loadOps, "load op", orDefault(s.Load, "clear")); err != nil {
		return a, err
	}
	if a.StoreOp, err = lookup(storeOps, "store op", orDefault(s.Store, defaultStore)); err != nil {
		return a, err
	}
	if a.StencilLoadOp, err = lookup(loadOps, "stencil load op", orDefault(s.StencilLoad, "dont_care")); err != nil {
		return a, err
	}
	if a.StencilStoreOp, err = lookup(storeOps, "stencil store op", orDefault(s.StencilStore, "dont_care")); err != nil {
		return a, err
	}

	if s.InitialLayout != "" {
		l, err := lookup(layouts, "layout", s.InitialLayout)
		if err != nil {
			return a, err
		}
		a.InitialLayout = vulkan.Layout(l)
	}
	if s.FinalLayout != "" {
		l, err := lookup(layouts, "layout", s.FinalLayout)
		if err != nil {
			return a, err
		}
		a.FinalLayout = vulkan.Layout(l)
	}

	for _, text := range s.Usages {
		u, err := vulkan.ParseUsage(text)
		if err != nil {
			return a, err
		}
		a.Usages = append(a.Usages, u)
	}
	return a, nil
}

func sampleCount(n uint32) (vk.SampleCountFlagBits, error) {
	switch n {
	case 0, 1:
		return vk.SampleCount1Bit, nil
	case 2, 4, 8, 16, 32, 64:
		// the flag bits equal the sample counts
		return vk.SampleCountFlagBits(n), nil
	}
	return 0, errors.Wrapf(ErrInvalidPlan, "%d samples", n)
}

func parseSubpass(s string) (uint32, error) {
	if s == "" || s == "external" {
		return vulkan.SubpassExternal, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidPlan, "subpass %q", s)
	}
	return uint32(v), nil
}

func (s DependencySpec) build() (vulkan.SubpassDependency, error) {
	var d vulkan.SubpassDependency
	var err error
	if d.Src, err = parseSubpass(s.Src); err != nil {
		return d, err
	}
	if d.Dst, err = parseSubpass(s.Dst); err != nil {
		return d, err
	}
	for _, name := range s.SrcStages {
		bit, err := lookup(stages, "stage", name)
		if err != nil {
			return d, err
		}
		d.SrcStages |= vk.PipelineStageFlags(bit)
	}
	for _, name := range s.DstStages {
		bit, err := lookup(stages, "stage", name)
		if err != nil {
			return d, err
		}
		d.DstStages |= vk.PipelineStageFlags(bit)
	}
	for _, name := range s.SrcAccess {
		bit, err := lookup(accesses, "access", name)
		if err != nil {
			return d, err
		}
		d.SrcAccess |= vk.AccessFlags(bit)
	}
	for _, name := range s.DstAccess {
		bit, err := lookup(accesses, "access", name)
		if err != nil {
			return d, err
		}
		d.DstAccess |= vk.AccessFlags(bit)
	}
	if s.ByRegion {
		d.Flags = vk.DependencyFlags(vk.DependencyByRegionBit)
	}
	return d, nil
}
