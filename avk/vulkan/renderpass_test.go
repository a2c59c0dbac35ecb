package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/cg-tuwien/auto-vk/avk/lifetime"
)

const (
	swapchainFormat = vk.FormatB8g8r8a8Unorm
	gbufferFormat   = vk.FormatR16g16b16a16Sfloat
	depthFormat     = vk.FormatD32Sfloat
)

func mustPlan(t *testing.T, attachments []Attachment) *RenderpassPlan {
	t.Helper()
	plan, err := PlanRenderpass(attachments, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return plan
}

func findDependency(plan *RenderpassPlan, src, dst uint32) (SubpassDependency, bool) {
	for _, d := range plan.Dependencies {
		if d.Src == src && d.Dst == dst {
			return d, true
		}
	}
	return SubpassDependency{}, false
}

func TestPlanSingleSubpassColorAndDepth(t *testing.T) {
	plan := mustPlan(t, []Attachment{
		PresentableColorAttachment(swapchainFormat, Color(0)),
		DepthStencilAttachment(depthFormat, DepthStencil()),
	})

	if len(plan.Subpasses) != 1 {
		t.Fatalf("%d subpasses", len(plan.Subpasses))
	}
	sp := plan.Subpasses[0]
	if len(sp.Colors) != 1 || sp.Colors[0] != (AttachmentRef{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}) {
		t.Errorf("colors = %v", sp.Colors)
	}
	if sp.DepthStencil == nil || *sp.DepthStencil != (AttachmentRef{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}) {
		t.Errorf("depth = %v", sp.DepthStencil)
	}
	if sp.Inputs != nil || sp.Resolves != nil || sp.Preserves != nil {
		t.Errorf("unexpected references: %+v", sp)
	}

	color, depth := plan.Attachments[0], plan.Attachments[1]
	if color.InitialLayout != vk.ImageLayoutUndefined || color.FinalLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("color layouts %d -> %d", color.InitialLayout, color.FinalLayout)
	}
	if depth.InitialLayout != vk.ImageLayoutUndefined || depth.FinalLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth layouts %d -> %d", depth.InitialLayout, depth.FinalLayout)
	}

	if len(plan.Dependencies) != 2 {
		t.Fatalf("dependencies = %v", plan.Dependencies)
	}
	first := plan.Dependencies[0]
	want := SubpassDependency{
		Src:       SubpassExternal,
		Dst:       0,
		SrcStages: colorOutputStage | fragmentTests,
		DstStages: colorOutputStage | fragmentTests,
		SrcAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		DstAccess: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}
	if first != want {
		t.Errorf("external dependency = %v, want %v", first, want)
	}
	last := plan.Dependencies[1]
	if last.Src != 0 || last.Dst != SubpassExternal || last.SrcAccess != vk.AccessFlags(vk.AccessColorAttachmentWriteBit) {
		t.Errorf("final dependency = %v", last)
	}
}

func TestPlanDeferredShading(t *testing.T) {
	plan := mustPlan(t, []Attachment{
		PresentableColorAttachment(swapchainFormat, Unused(), Color(0)),
		ColorAttachment(gbufferFormat, Color(0), Input(0)),
		ColorAttachment(gbufferFormat, Color(1), Input(1)),
		DepthStencilAttachment(depthFormat, DepthStencil(), Input(2)),
	})

	geometry, lighting := plan.Subpasses[0], plan.Subpasses[1]
	if len(geometry.Colors) != 2 || geometry.Colors[0].Attachment != 1 || geometry.Colors[1].Attachment != 2 {
		t.Errorf("geometry colors = %v", geometry.Colors)
	}
	if geometry.DepthStencil == nil || geometry.DepthStencil.Attachment != 3 {
		t.Errorf("geometry depth = %v", geometry.DepthStencil)
	}
	if geometry.Preserves != nil {
		t.Errorf("nothing to preserve before first use: %v", geometry.Preserves)
	}

	wantInputs := []AttachmentRef{
		{Attachment: 1, Layout: vk.ImageLayoutShaderReadOnlyOptimal},
		{Attachment: 2, Layout: vk.ImageLayoutShaderReadOnlyOptimal},
		{Attachment: 3, Layout: vk.ImageLayoutDepthStencilReadOnlyOptimal},
	}
	if len(lighting.Inputs) != len(wantInputs) {
		t.Fatalf("lighting inputs = %v", lighting.Inputs)
	}
	for i := range wantInputs {
		if lighting.Inputs[i] != wantInputs[i] {
			t.Errorf("input %d = %v, want %v", i, lighting.Inputs[i], wantInputs[i])
		}
	}
	if lighting.DepthStencil != nil {
		t.Error("lighting reads depth as input only")
	}
	if plan.Attachments[3].FinalLayout != vk.ImageLayoutDepthStencilReadOnlyOptimal {
		t.Errorf("depth final layout = %d", plan.Attachments[3].FinalLayout)
	}

	order := [][2]uint32{{SubpassExternal, 0}, {SubpassExternal, 1}, {0, 1}, {1, SubpassExternal}}
	if len(plan.Dependencies) != len(order) {
		t.Fatalf("dependencies = %v", plan.Dependencies)
	}
	for i, o := range order {
		if d := plan.Dependencies[i]; d.Src != o[0] || d.Dst != o[1] {
			t.Errorf("dependency %d = %v, want %s -> %s", i, d, subpassName(o[0]), subpassName(o[1]))
		}
	}

	gbuffer, _ := findDependency(plan, 0, 1)
	if gbuffer.Flags != vk.DependencyFlags(vk.DependencyByRegionBit) {
		t.Error("input attachment reads should be by region")
	}
	if gbuffer.SrcStages != colorOutputStage|fragmentTests || gbuffer.DstStages != fragmentShader {
		t.Errorf("stages = 0x%X -> 0x%X", gbuffer.SrcStages, gbuffer.DstStages)
	}
	if gbuffer.SrcAccess != vk.AccessFlags(vk.AccessColorAttachmentWriteBit)|vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit) ||
		gbuffer.DstAccess != vk.AccessFlags(vk.AccessInputAttachmentReadBit) {
		t.Errorf("access = 0x%X -> 0x%X", gbuffer.SrcAccess, gbuffer.DstAccess)
	}
}

func TestPlanPreservesAttachments(t *testing.T) {
	plan := mustPlan(t, []Attachment{
		ColorAttachment(gbufferFormat, Color(0), Unused(), Input(0)),
		ColorAttachment(gbufferFormat, Unused(), Color(0), Color(0)),
		ColorAttachment(gbufferFormat, Color(1), Preserve(), Unused()),
	})

	if got := plan.Subpasses[1].Preserves; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("subpass 1 preserves %v, want [0 2]", got)
	}
	if got := plan.Subpasses[2].Preserves; got != nil {
		t.Errorf("subpass 2 preserves %v, nothing is used afterwards", got)
	}
	if plan.Attachments[0].Layouts[1] != vk.ImageLayoutUndefined {
		t.Error("preserved attachment has no layout in the subpass")
	}

	skip, ok := findDependency(plan, 0, 2)
	if !ok || skip.Flags != vk.DependencyFlags(vk.DependencyByRegionBit) {
		t.Errorf("dependency across the preserving subpass = %v, %v", skip, ok)
	}
	color, ok := findDependency(plan, 1, 2)
	if !ok || color.Flags != 0 || color.DstStages != colorOutputStage {
		t.Errorf("color to color dependency = %v, %v", color, ok)
	}
}

func TestPlanFillsLocationHoles(t *testing.T) {
	plan := mustPlan(t, []Attachment{
		ColorAttachment(gbufferFormat, Color(2).And(Input(1))),
	})
	sp := plan.Subpasses[0]
	if len(sp.Colors) != 3 || sp.Colors[0] != unusedRef || sp.Colors[1] != unusedRef {
		t.Errorf("colors = %v", sp.Colors)
	}
	if len(sp.Inputs) != 2 || sp.Inputs[0].Attachment != AttachmentUnused {
		t.Errorf("inputs = %v", sp.Inputs)
	}
	if sp.Colors[2].Layout != vk.ImageLayoutGeneral || sp.Inputs[1].Layout != vk.ImageLayoutGeneral {
		t.Error("read and written in one subpass needs the general layout")
	}
}

func TestPlanResolve(t *testing.T) {
	plan := mustPlan(t, []Attachment{
		{
			Format:  swapchainFormat,
			Samples: vk.SampleCount4Bit,
			LoadOp:  vk.AttachmentLoadOpClear,
			StoreOp: vk.AttachmentStoreOpDontCare,
			Usages:  []SubpassUsage{Color(0).And(Resolve(1))},
		},
		PresentableColorAttachment(swapchainFormat, Unused()),
	})

	sp := plan.Subpasses[0]
	if len(sp.Resolves) != 1 || sp.Resolves[0] != (AttachmentRef{Attachment: 1, Layout: vk.ImageLayoutColorAttachmentOptimal}) {
		t.Errorf("resolves = %v", sp.Resolves)
	}
	if plan.Attachments[0].Samples != vk.SampleCount4Bit || plan.Attachments[1].Samples != vk.SampleCount1Bit {
		t.Errorf("samples not carried over")
	}
	if plan.Attachments[1].Layouts[0] != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("resolve target layout = %d", plan.Attachments[1].Layouts[0])
	}
	out, ok := findDependency(plan, 0, SubpassExternal)
	if !ok || out.SrcAccess != vk.AccessFlags(vk.AccessColorAttachmentWriteBit) {
		t.Errorf("resolved image must be made visible after the pass: %v", out)
	}

	if plan.Attachments[0].FinalLayout != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("multisampled final layout = %d", plan.Attachments[0].FinalLayout)
	}
}

func TestPlanInitialAndFinalLayouts(t *testing.T) {
	loaded := ColorAttachment(gbufferFormat, Color(0))
	loaded.LoadOp = vk.AttachmentLoadOpLoad

	explicit := ColorAttachment(gbufferFormat, Color(1))
	explicit.InitialLayout = Layout(vk.ImageLayoutTransferDstOptimal)
	explicit.FinalLayout = Layout(vk.ImageLayoutShaderReadOnlyOptimal)

	plan := mustPlan(t, []Attachment{loaded, explicit})
	if got := plan.Attachments[0].InitialLayout; got != vk.ImageLayoutColorAttachmentOptimal {
		t.Errorf("loaded attachment starts in %d", got)
	}
	if plan.Attachments[1].InitialLayout != vk.ImageLayoutTransferDstOptimal || plan.Attachments[1].FinalLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("explicit layouts ignored: %+v", plan.Attachments[1])
	}
}

func TestPlanSkipsReadAfterRead(t *testing.T) {
	lut := ColorAttachment(gbufferFormat, Input(0), Input(0))
	lut.LoadOp = vk.AttachmentLoadOpLoad
	lut.StoreOp = vk.AttachmentStoreOpDontCare

	plan := mustPlan(t, []Attachment{
		lut,
		ColorAttachment(swapchainFormat, Color(0), Unused()),
	})
	if d, ok := findDependency(plan, 0, 1); ok {
		t.Errorf("two reads need no dependency, got %v", d)
	}
	if plan.Attachments[0].InitialLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("loaded input starts in %d", plan.Attachments[0].InitialLayout)
	}
}

func TestPlanOrdersExternalDestinationsLast(t *testing.T) {
	plan := mustPlan(t, []Attachment{
		ColorAttachment(swapchainFormat, Color(0), Unused(), Unused()),
		ColorAttachment(gbufferFormat, Unused(), Color(0), Input(0)),
	})

	order := [][2]uint32{{SubpassExternal, 0}, {SubpassExternal, 1}, {1, 2}, {0, SubpassExternal}}
	if len(plan.Dependencies) != len(order) {
		t.Fatalf("dependencies = %v", plan.Dependencies)
	}
	for i, o := range order {
		if d := plan.Dependencies[i]; d.Src != o[0] || d.Dst != o[1] {
			t.Errorf("dependency %d = %v, want %s -> %s", i, d, subpassName(o[0]), subpassName(o[1]))
		}
	}
}

func TestPlanExplicitDependencies(t *testing.T) {
	explicit := []SubpassDependency{{
		Src:       SubpassExternal,
		Dst:       0,
		SrcStages: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		DstStages: colorOutputStage,
	}}
	plan, err := PlanRenderpass([]Attachment{ColorAttachment(swapchainFormat, Color(0))}, explicit)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Dependencies) != 1 || plan.Dependencies[0] != explicit[0] {
		t.Errorf("explicit dependencies not used as given: %v", plan.Dependencies)
	}
}

func TestPlanRenderpassErrors(t *testing.T) {
	msaa := func(usages ...SubpassUsage) Attachment {
		a := ColorAttachment(swapchainFormat, usages...)
		a.Samples = vk.SampleCount4Bit
		return a
	}
	tests := []struct {
		name        string
		attachments []Attachment
		deps        []SubpassDependency
		want        error
	}{
		{"no attachments", nil, nil, ErrNoAttachments},
		{"no usages", []Attachment{ColorAttachment(swapchainFormat)}, nil, ErrUsageCountMismatch},
		{"usage count mismatch", []Attachment{
			ColorAttachment(swapchainFormat, Color(0)),
			ColorAttachment(swapchainFormat, Color(1), Color(1)),
		}, nil, ErrUsageCountMismatch},
		{"color location twice", []Attachment{
			ColorAttachment(swapchainFormat, Color(0)),
			ColorAttachment(swapchainFormat, Color(0)),
		}, nil, ErrDuplicateLocation},
		{"input location twice", []Attachment{
			ColorAttachment(gbufferFormat, Input(0)),
			ColorAttachment(gbufferFormat, Input(0)),
		}, nil, ErrDuplicateLocation},
		{"two depth attachments", []Attachment{
			DepthStencilAttachment(depthFormat, DepthStencil()),
			DepthStencilAttachment(vk.FormatD24UnormS8Uint, DepthStencil()),
		}, nil, ErrMultipleDepthStencil},
		{"depth format as color", []Attachment{ColorAttachment(depthFormat, Color(0))}, nil, ErrConflictingUsage},
		{"color format as depth", []Attachment{ColorAttachment(swapchainFormat, DepthStencil())}, nil, ErrConflictingUsage},
		{"preserved and used", []Attachment{ColorAttachment(swapchainFormat, Color(0).And(Preserve()))}, nil, ErrConflictingUsage},
		{"resolve without color", []Attachment{
			msaa(Input(0).And(Resolve(1))),
			ColorAttachment(swapchainFormat, Unused()),
		}, nil, ErrInvalidResolve},
		{"resolve target out of range", []Attachment{msaa(Color(0).And(Resolve(5)))}, nil, ErrInvalidResolve},
		{"resolve into itself", []Attachment{msaa(Color(0).And(Resolve(0)))}, nil, ErrInvalidResolve},
		{"resolve single-sampled source", []Attachment{
			ColorAttachment(swapchainFormat, Color(0).And(Resolve(1))),
			ColorAttachment(swapchainFormat, Unused()),
		}, nil, ErrInvalidResolve},
		{"resolve into multisampled target", []Attachment{
			msaa(Color(0).And(Resolve(1))),
			msaa(Unused()),
		}, nil, ErrInvalidResolve},
		{"resolve target otherwise used", []Attachment{
			msaa(Color(0).And(Resolve(1))),
			ColorAttachment(swapchainFormat, Color(1)),
		}, nil, ErrInvalidResolve},
		{"dependency out of range", []Attachment{ColorAttachment(swapchainFormat, Color(0))},
			[]SubpassDependency{{Src: 0, Dst: 3}}, ErrInvalidDependency},
		{"external on both ends", []Attachment{ColorAttachment(swapchainFormat, Color(0))},
			[]SubpassDependency{{Src: SubpassExternal, Dst: SubpassExternal}}, ErrInvalidDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanRenderpass(tt.attachments, tt.deps)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubpassUsageString(t *testing.T) {
	tests := []struct {
		usage SubpassUsage
		want  string
	}{
		{Unused(), "unused"},
		{Input(1).And(Color(0)), "input(1)+color(0)"},
		{Color(0).ResolveTo(3), "color(0)+resolve(3)"},
		{DepthStencil(), "depth_stencil"},
		{Preserve(), "preserve"},
	}
	for _, tt := range tests {
		if got := tt.usage.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCreateRenderpassAndFramebuffer(t *testing.T) {
	dev := newFakeDevice(VendorIntel)
	rp, err := CreateRenderpass(dev, []Attachment{
		PresentableColorAttachment(swapchainFormat, Color(0)),
		DepthStencilAttachment(depthFormat, DepthStencil()),
	}, nil)
	if err != nil {
		t.Fatalf("create render pass: %v", err)
	}
	if len(dev.renderpassInfos) != 1 {
		t.Fatalf("render pass created %d times", len(dev.renderpassInfos))
	}
	info := dev.renderpassInfos[0]
	if info.AttachmentCount != 2 || info.SubpassCount != 1 || info.DependencyCount != uint32(len(rp.Plan.Dependencies)) {
		t.Errorf("create info counts %d/%d/%d", info.AttachmentCount, info.SubpassCount, info.DependencyCount)
	}
	if info.PSubpasses[0].PDepthStencilAttachment == nil || info.PSubpasses[0].ColorAttachmentCount != 1 {
		t.Error("subpass description incomplete")
	}
	if info.PAttachments[0].FinalLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("final layout = %d", info.PAttachments[0].FinalLayout)
	}

	views := []vk.ImageView{fakeHandle[vk.ImageView](), fakeHandle[vk.ImageView]()}
	if _, err := CreateFramebuffer(dev, lifetime.Referencing(lifetime.Ref(rp)), views[:1], 640, 480, 1); !errors.Is(err, ErrAttachmentCountMismatch) {
		t.Errorf("mismatched views err = %v", err)
	}

	owned := lifetime.Own(rp, (*Renderpass).Destroy)
	fb, err := CreateFramebuffer(dev, lifetime.Owning(owned), views, 640, 480, 0)
	if err != nil {
		t.Fatalf("create framebuffer: %v", err)
	}
	if got := dev.framebufferInfos[0]; got.AttachmentCount != 2 || got.Layers != 1 || got.RenderPass != rp.Handle {
		t.Errorf("framebuffer create info = %+v", got)
	}

	fb.Destroy()
	if dev.destroyedFramebuffers != 1 || dev.destroyedRenderpasses != 1 {
		t.Errorf("destroyed %d framebuffers, %d render passes", dev.destroyedFramebuffers, dev.destroyedRenderpasses)
	}
	if !owned.IsReleased() {
		t.Error("framebuffer should have released its render pass")
	}
}

func TestFramebufferLeavesReferencedRenderpass(t *testing.T) {
	dev := newFakeDevice(VendorIntel)
	rp, err := CreateRenderpass(dev, []Attachment{ColorAttachment(swapchainFormat, Color(0))}, nil)
	if err != nil {
		t.Fatalf("create render pass: %v", err)
	}
	fb, err := CreateFramebuffer(dev, lifetime.Referencing(lifetime.Ref(rp)), []vk.ImageView{fakeHandle[vk.ImageView]()}, 64, 64, 1)
	if err != nil {
		t.Fatalf("create framebuffer: %v", err)
	}
	fb.Destroy()
	if dev.destroyedRenderpasses != 0 || rp.Handle == nil {
		t.Error("referenced render pass must outlive the framebuffer")
	}
	rp.Destroy()
	if dev.destroyedRenderpasses != 1 {
		t.Errorf("render pass destroyed %d times", dev.destroyedRenderpasses)
	}
}

func TestParseUsage(t *testing.T) {
	tests := []struct {
		in   string
		want SubpassUsage
	}{
		{"unused", Unused()},
		{"color(2)", Color(2)},
		{"input(0) + color(1)", Input(0).And(Color(1))},
		{"Color(0)+Resolve(3)", Color(0).ResolveTo(3)},
		{"depth_stencil+input(1)", DepthStencil().And(Input(1))},
		{"preserve", Preserve()},
	}
	for _, tt := range tests {
		got, err := ParseUsage(tt.in)
		if err != nil {
			t.Errorf("ParseUsage(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseUsage(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if again, err := ParseUsage(got.String()); err != nil || again != got {
			t.Errorf("%s does not survive a round trip", got)
		}
	}

	for _, bad := range []string{"", "color", "color(x)", "input(1", "depth_stencil(0)", "sample(1)"} {
		if _, err := ParseUsage(bad); !errors.Is(err, ErrInvalidUsage) {
			t.Errorf("ParseUsage(%q) err = %v", bad, err)
		}
	}
}
