package vulkan

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

// Same values as VK_SUBPASS_EXTERNAL and VK_ATTACHMENT_UNUSED.
const (
	SubpassExternal  uint32 = ^uint32(0)
	AttachmentUnused uint32 = ^uint32(0)
)

var (
	ErrNoAttachments        = errors.New("a render pass needs at least one attachment")
	ErrUsageCountMismatch   = errors.New("attachments disagree on the number of subpasses")
	ErrDuplicateLocation    = errors.New("location used twice in one subpass")
	ErrMultipleDepthStencil = errors.New("more than one depth/stencil attachment in one subpass")
	ErrInvalidResolve       = errors.New("invalid resolve")
	ErrConflictingUsage     = errors.New("conflicting attachment usage")
	ErrInvalidDependency    = errors.New("invalid subpass dependency")
)

type AttachmentRef struct {
	Attachment uint32
	Layout     vk.ImageLayout
}

var unusedRef = AttachmentRef{Attachment: AttachmentUnused, Layout: vk.ImageLayoutUndefined}

// SubpassPlan holds the reference arrays of one subpass, indexed by shader
// location. Holes are AttachmentUnused. Resolves is nil or as long as Colors.
type SubpassPlan struct {
	Inputs       []AttachmentRef
	Colors       []AttachmentRef
	Resolves     []AttachmentRef
	DepthStencil *AttachmentRef
	Preserves    []uint32
}

type SubpassDependency struct {
	Src       uint32
	Dst       uint32
	SrcStages vk.PipelineStageFlags
	DstStages vk.PipelineStageFlags
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	Flags     vk.DependencyFlags
}

func (d SubpassDependency) String() string {
	return fmt.Sprintf("%s -> %s stages 0x%X -> 0x%X access 0x%X -> 0x%X flags 0x%X",
		subpassName(d.Src), subpassName(d.Dst), d.SrcStages, d.DstStages, d.SrcAccess, d.DstAccess, d.Flags)
}

func subpassName(s uint32) string {
	if s == SubpassExternal {
		return "external"
	}
	return fmt.Sprintf("%d", s)
}

type AttachmentPlan struct {
	Format         vk.Format
	Samples        vk.SampleCountFlagBits
	LoadOp         vk.AttachmentLoadOp
	StoreOp        vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	InitialLayout  vk.ImageLayout
	FinalLayout    vk.ImageLayout
	// layout per subpass, Undefined where the subpass does not touch it
	Layouts []vk.ImageLayout
}

// RenderpassPlan is everything needed for vkCreateRenderPass, computed
// without a device.
type RenderpassPlan struct {
	Attachments  []AttachmentPlan
	Subpasses    []SubpassPlan
	Dependencies []SubpassDependency
}

// attachmentAccess is what one subpass does to one attachment.
type attachmentAccess struct {
	layout vk.ImageLayout
	stages vk.PipelineStageFlags
	reads  vk.AccessFlags
	writes vk.AccessFlags
}

func (x attachmentAccess) used() bool {
	return x.stages != 0
}

const (
	colorOutputStage = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	fragmentTests    = vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	fragmentShader   = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)

	consumerStages = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) | fragmentShader | vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	consumerAccess = vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessTransferReadBit)
)

func accessOf(a Attachment, u SubpassUsage, resolveTarget bool) attachmentAccess {
	var x attachmentAccess
	if u.IsInput() {
		x.stages |= fragmentShader
		x.reads |= vk.AccessFlags(vk.AccessInputAttachmentReadBit)
	}
	if u.IsColor() {
		x.stages |= colorOutputStage
		x.reads |= vk.AccessFlags(vk.AccessColorAttachmentReadBit)
		x.writes |= vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	}
	if resolveTarget {
		x.stages |= colorOutputStage
		x.writes |= vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	}
	if u.IsDepthStencil() {
		x.stages |= fragmentTests
		x.reads |= vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit)
		x.writes |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	switch {
	case !x.used():
		x.layout = vk.ImageLayoutUndefined
	case u.IsInput() && (u.IsColor() || u.IsDepthStencil()):
		// read and written in the same subpass (feedback loop)
		x.layout = vk.ImageLayoutGeneral
	case u.IsInput() && IsDepthFormat(a.Format):
		x.layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
	case u.IsInput():
		x.layout = vk.ImageLayoutShaderReadOnlyOptimal
	case u.IsDepthStencil():
		x.layout = vk.ImageLayoutDepthStencilAttachmentOptimal
	default:
		x.layout = vk.ImageLayoutColorAttachmentOptimal
	}
	return x
}

// validateAttachments returns the number of subpasses.
func validateAttachments(attachments []Attachment) (int, error) {
	if len(attachments) == 0 {
		return 0, ErrNoAttachments
	}
	numSubpasses := len(attachments[0].Usages)
	if numSubpasses == 0 {
		return 0, errors.Wrap(ErrUsageCountMismatch, "attachment 0 declares no subpass usage")
	}
	for i, a := range attachments {
		if len(a.Usages) != numSubpasses {
			return 0, errors.Wrapf(ErrUsageCountMismatch, "attachment %d has %d usages, attachment 0 has %d", i, len(a.Usages), numSubpasses)
		}
	}

	for s := 0; s < numSubpasses; s++ {
		inputs := make(map[uint32]int)
		colors := make(map[uint32]int)
		resolved := make(map[uint32]int)
		depth := -1
		for i, a := range attachments {
			u := a.Usages[s]
			isDepth := IsDepthFormat(a.Format)

			if u.IsPreserve() && !u.IsUnused() {
				return 0, errors.Wrapf(ErrConflictingUsage, "attachment %d is both used and preserved in subpass %d", i, s)
			}
			if u.IsColor() && u.IsDepthStencil() {
				return 0, errors.Wrapf(ErrConflictingUsage, "attachment %d is color and depth/stencil in subpass %d", i, s)
			}
			if u.IsColor() && isDepth {
				return 0, errors.Wrapf(ErrConflictingUsage, "attachment %d has a depth format but is a color attachment in subpass %d", i, s)
			}
			if u.IsDepthStencil() && !isDepth {
				return 0, errors.Wrapf(ErrConflictingUsage, "attachment %d has a color format but is a depth/stencil attachment in subpass %d", i, s)
			}

			if u.IsInput() {
				if j, ok := inputs[u.InputLocation()]; ok {
					return 0, errors.Wrapf(ErrDuplicateLocation, "input location %d of subpass %d taken by attachments %d and %d", u.InputLocation(), s, j, i)
				}
				inputs[u.InputLocation()] = i
			}
			if u.IsColor() {
				if j, ok := colors[u.ColorLocation()]; ok {
					return 0, errors.Wrapf(ErrDuplicateLocation, "color location %d of subpass %d taken by attachments %d and %d", u.ColorLocation(), s, j, i)
				}
				colors[u.ColorLocation()] = i
			}
			if u.IsDepthStencil() {
				if depth >= 0 {
					return 0, errors.Wrapf(ErrMultipleDepthStencil, "attachments %d and %d in subpass %d", depth, i, s)
				}
				depth = i
			}

			if !u.IsResolve() {
				continue
			}
			if !u.IsColor() {
				return 0, errors.Wrapf(ErrInvalidResolve, "attachment %d resolves in subpass %d without being a color attachment", i, s)
			}
			t := u.ResolveTarget()
			if int(t) >= len(attachments) || int(t) == i {
				return 0, errors.Wrapf(ErrInvalidResolve, "attachment %d resolves into invalid attachment %d", i, t)
			}
			if a.samples() == vk.SampleCount1Bit {
				return 0, errors.Wrapf(ErrInvalidResolve, "attachment %d is single-sampled", i)
			}
			target := attachments[t]
			if target.samples() != vk.SampleCount1Bit {
				return 0, errors.Wrapf(ErrInvalidResolve, "resolve target %d is multisampled", t)
			}
			if target.Usages[s].Flags() != 0 {
				return 0, errors.Wrapf(ErrInvalidResolve, "resolve target %d is otherwise used in subpass %d", t, s)
			}
			if j, ok := resolved[t]; ok {
				return 0, errors.Wrapf(ErrInvalidResolve, "attachments %d and %d both resolve into %d in subpass %d", j, i, t, s)
			}
			resolved[t] = i
		}
	}
	return numSubpasses, nil
}

func validateDependencies(deps []SubpassDependency, numSubpasses int) error {
	valid := func(s uint32) bool {
		return s == SubpassExternal || int(s) < numSubpasses
	}
	for i, d := range deps {
		if !valid(d.Src) || !valid(d.Dst) {
			return errors.Wrapf(ErrInvalidDependency, "dependency %d references a subpass out of range", i)
		}
		if d.Src == SubpassExternal && d.Dst == SubpassExternal {
			return errors.Wrapf(ErrInvalidDependency, "dependency %d is external on both ends", i)
		}
		if d.Src != SubpassExternal && d.Dst != SubpassExternal && d.Src > d.Dst {
			return errors.Wrapf(ErrInvalidDependency, "dependency %d goes backwards from %d to %d", i, d.Src, d.Dst)
		}
	}
	return nil
}

// PlanRenderpass derives subpass descriptions, attachment layouts and
// dependencies from per-subpass attachment usages. Explicit dependencies,
// when given, are used as they are instead of synthesized ones.
func PlanRenderpass(attachments []Attachment, explicitDeps []SubpassDependency) (*RenderpassPlan, error) {
	numSubpasses, err := validateAttachments(attachments)
	if err != nil {
		return nil, err
	}
	if err := validateDependencies(explicitDeps, numSubpasses); err != nil {
		return nil, err
	}

	isResolveTarget := make([]map[uint32]bool, numSubpasses)
	for s := range isResolveTarget {
		isResolveTarget[s] = make(map[uint32]bool)
		for _, a := range attachments {
			if u := a.Usages[s]; u.IsResolve() {
				isResolveTarget[s][u.ResolveTarget()] = true
			}
		}
	}

	access := make([][]attachmentAccess, len(attachments))
	for i, a := range attachments {
		access[i] = make([]attachmentAccess, numSubpasses)
		for s, u := range a.Usages {
			access[i][s] = accessOf(a, u, isResolveTarget[s][uint32(i)])
		}
	}

	plan := &RenderpassPlan{
		Attachments: make([]AttachmentPlan, len(attachments)),
		Subpasses:   make([]SubpassPlan, numSubpasses),
	}
	for s := range plan.Subpasses {
		plan.Subpasses[s] = planSubpass(attachments, access, s)
	}
	for i, a := range attachments {
		plan.Attachments[i] = planAttachment(a, access[i])
	}

	if len(explicitDeps) > 0 {
		plan.Dependencies = make([]SubpassDependency, len(explicitDeps))
		copy(plan.Dependencies, explicitDeps)
	} else {
		plan.Dependencies = synthesizeDependencies(attachments, access)
	}
	return plan, nil
}

func placeAt(refs []AttachmentRef, location uint32, ref AttachmentRef) []AttachmentRef {
	for uint32(len(refs)) <= location {
		refs = append(refs, unusedRef)
	}
	refs[location] = ref
	return refs
}

func planSubpass(attachments []Attachment, access [][]attachmentAccess, s int) SubpassPlan {
	var sp SubpassPlan
	for i, a := range attachments {
		u := a.Usages[s]
		ref := AttachmentRef{Attachment: uint32(i), Layout: access[i][s].layout}

		if u.IsInput() {
			sp.Inputs = placeAt(sp.Inputs, u.InputLocation(), ref)
		}
		if u.IsColor() {
			sp.Colors = placeAt(sp.Colors, u.ColorLocation(), ref)
			if u.IsResolve() {
				t := u.ResolveTarget()
				sp.Resolves = placeAt(sp.Resolves, u.ColorLocation(), AttachmentRef{Attachment: t, Layout: access[t][s].layout})
			}
		}
		if u.IsDepthStencil() {
			sp.DepthStencil = &ref
		}
		if u.IsPreserve() || (!access[i][s].used() && usedBefore(access[i], s) && usedAfter(access[i], s)) {
			sp.Preserves = append(sp.Preserves, uint32(i))
		}
	}
	if sp.Resolves != nil {
		for len(sp.Resolves) < len(sp.Colors) {
			sp.Resolves = append(sp.Resolves, unusedRef)
		}
	}
	return sp
}

func usedBefore(access []attachmentAccess, s int) bool {
	for _, x := range access[:s] {
		if x.used() {
			return true
		}
	}
	return false
}

func usedAfter(access []attachmentAccess, s int) bool {
	for _, x := range access[s+1:] {
		if x.used() {
			return true
		}
	}
	return false
}

func firstAndLastUse(access []attachmentAccess) (int, int) {
	first, last := -1, -1
	for s, x := range access {
		if !x.used() {
			continue
		}
		if first < 0 {
			first = s
		}
		last = s
	}
	return first, last
}

func loadsContents(a Attachment) bool {
	return a.LoadOp == vk.AttachmentLoadOpLoad ||
		(IsDepthFormat(a.Format) && a.StencilLoadOp == vk.AttachmentLoadOpLoad)
}

func storesContents(a Attachment) bool {
	return a.StoreOp == vk.AttachmentStoreOpStore ||
		(IsDepthFormat(a.Format) && a.StencilStoreOp == vk.AttachmentStoreOpStore)
}

func planAttachment(a Attachment, access []attachmentAccess) AttachmentPlan {
	p := AttachmentPlan{
		Format:         a.Format,
		Samples:        a.samples(),
		LoadOp:         a.LoadOp,
		StoreOp:        a.StoreOp,
		StencilLoadOp:  a.StencilLoadOp,
		StencilStoreOp: a.StencilStoreOp,
		Layouts:        make([]vk.ImageLayout, len(access)),
	}
	for s, x := range access {
		p.Layouts[s] = x.layout
	}

	first, last := firstAndLastUse(access)
	switch {
	case a.InitialLayout != nil:
		p.InitialLayout = *a.InitialLayout
	case first >= 0 && loadsContents(a):
		p.InitialLayout = access[first].layout
	default:
		p.InitialLayout = vk.ImageLayoutUndefined
	}

	switch {
	case a.FinalLayout != nil:
		p.FinalLayout = *a.FinalLayout
	case last >= 0:
		p.FinalLayout = access[last].layout
	case p.InitialLayout != vk.ImageLayoutUndefined:
		p.FinalLayout = p.InitialLayout
	default:
		// finalLayout must not be UNDEFINED
		p.FinalLayout = vk.ImageLayoutGeneral
	}
	return p
}

// externalProducer is whatever wrote the attachment before the render pass,
// assumed to be the same kind of attachment write.
func externalProducer(a Attachment) (vk.PipelineStageFlags, vk.AccessFlags) {
	if IsDepthFormat(a.Format) {
		return fragmentTests, vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}
	return colorOutputStage, vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
}

type dependencyKey struct {
	src, dst uint32
}

// order puts external sources first and external destinations last, and
// sorts by source then destination within each group.
func (k dependencyKey) order() (int, int64, int64) {
	group := 1
	switch {
	case k.src == SubpassExternal:
		group = 0
	case k.dst == SubpassExternal:
		group = 2
	}
	return group, int64(k.src), int64(k.dst)
}

func synthesizeDependencies(attachments []Attachment, access [][]attachmentAccess) []SubpassDependency {
	merged := make(map[dependencyKey]*SubpassDependency)
	add := func(d SubpassDependency) {
		key := dependencyKey{src: d.Src, dst: d.Dst}
		if m, ok := merged[key]; ok {
			m.SrcStages |= d.SrcStages
			m.DstStages |= d.DstStages
			m.SrcAccess |= d.SrcAccess
			m.DstAccess |= d.DstAccess
			m.Flags |= d.Flags
			return
		}
		merged[key] = &d
	}

	for i, a := range attachments {
		var uses []int
		for s, x := range access[i] {
			if x.used() {
				uses = append(uses, s)
			}
		}
		if len(uses) == 0 {
			continue
		}

		first := access[i][uses[0]]
		srcStages, srcAccess := externalProducer(a)
		add(SubpassDependency{
			Src:       SubpassExternal,
			Dst:       uint32(uses[0]),
			SrcStages: srcStages,
			SrcAccess: srcAccess,
			DstStages: first.stages,
			DstAccess: first.reads | first.writes,
		})

		for k := 1; k < len(uses); k++ {
			prev, next := access[i][uses[k-1]], access[i][uses[k]]
			if prev.writes == 0 && next.writes == 0 {
				// read after read
				continue
			}
			d := SubpassDependency{
				Src:       uint32(uses[k-1]),
				Dst:       uint32(uses[k]),
				SrcStages: prev.stages,
				SrcAccess: prev.writes,
				DstStages: next.stages,
				DstAccess: next.reads | next.writes,
			}
			if next.reads&vk.AccessFlags(vk.AccessInputAttachmentReadBit) != 0 {
				d.Flags = vk.DependencyFlags(vk.DependencyByRegionBit)
			}
			add(d)
		}

		last := access[i][uses[len(uses)-1]]
		transitions := a.FinalLayout != nil && *a.FinalLayout != last.layout
		if last.writes != 0 && (storesContents(a) || transitions) {
			add(SubpassDependency{
				Src:       uint32(uses[len(uses)-1]),
				Dst:       SubpassExternal,
				SrcStages: last.stages,
				SrcAccess: last.writes,
				DstStages: consumerStages,
				DstAccess: consumerAccess,
			})
		}
	}

	deps := make([]SubpassDependency, 0, len(merged))
	for _, d := range merged {
		deps = append(deps, *d)
	}
	sort.Slice(deps, func(i, j int) bool {
		gi, si, di := dependencyKey{deps[i].Src, deps[i].Dst}.order()
		gj, sj, dj := dependencyKey{deps[j].Src, deps[j].Dst}.order()
		if gi != gj {
			return gi < gj
		}
		if si != sj {
			return si < sj
		}
		return di < dj
	})
	return deps
}

func toVkRefs(refs []AttachmentRef) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{Attachment: r.Attachment, Layout: r.Layout}
	}
	return out
}

// CreateInfo fills a VkRenderPassCreateInfo. The returned structure owns all
// slices it points to.
func (p *RenderpassPlan) CreateInfo() vk.RenderPassCreateInfo {
	attachmentDescriptions := make([]vk.AttachmentDescription, len(p.Attachments))
	for i, a := range p.Attachments {
		attachmentDescriptions[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        a.Samples,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		}
	}

	subpasses := make([]vk.SubpassDescription, len(p.Subpasses))
	for s, sp := range p.Subpasses {
		subpass := vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			InputAttachmentCount:    uint32(len(sp.Inputs)),
			PInputAttachments:       toVkRefs(sp.Inputs),
			ColorAttachmentCount:    uint32(len(sp.Colors)),
			PColorAttachments:       toVkRefs(sp.Colors),
			PResolveAttachments:     toVkRefs(sp.Resolves),
			PreserveAttachmentCount: uint32(len(sp.Preserves)),
			PPreserveAttachments:    sp.Preserves,
		}
		if sp.DepthStencil != nil {
			subpass.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: sp.DepthStencil.Attachment,
				Layout:     sp.DepthStencil.Layout,
			}
		}
		subpasses[s] = subpass
	}

	dependencies := make([]vk.SubpassDependency, len(p.Dependencies))
	for i, d := range p.Dependencies {
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:      d.Src,
			DstSubpass:      d.Dst,
			SrcStageMask:    d.SrcStages,
			DstStageMask:    d.DstStages,
			SrcAccessMask:   d.SrcAccess,
			DstAccessMask:   d.DstAccess,
			DependencyFlags: d.Flags,
		}
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
}

type Renderpass struct {
	ID     uuid.UUID
	Handle vk.RenderPass
	Plan   *RenderpassPlan

	device Device
}

func CreateRenderpass(device Device, attachments []Attachment, explicitDeps []SubpassDependency) (*Renderpass, error) {
	plan, err := PlanRenderpass(attachments, explicitDeps)
	if err != nil {
		return nil, core.LogAndReturn(err)
	}

	createInfo := plan.CreateInfo()
	handle, err := device.CreateRenderPass(&createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "creating render pass")
	}

	rp := &Renderpass{
		ID:     uuid.New(),
		Handle: handle,
		Plan:   plan,
		device: device,
	}
	core.LogDebug("Render pass %s created: %d attachments, %d subpasses, %d dependencies",
		rp.ID, len(plan.Attachments), len(plan.Subpasses), len(plan.Dependencies))
	return rp, nil
}

func (r *Renderpass) NumAttachments() int {
	return len(r.Plan.Attachments)
}

func (r *Renderpass) NumSubpasses() int {
	return len(r.Plan.Subpasses)
}

func (r *Renderpass) Destroy() {
	if r.Handle != nil {
		r.device.DestroyRenderPass(r.Handle)
		r.Handle = nil
	}
}
