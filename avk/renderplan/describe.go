package renderplan

import (
	"fmt"
	"strings"

	"github.com/cg-tuwien/auto-vk/avk/vulkan"
)

func refNames(refs []vulkan.AttachmentRef, names []string) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		if r.Attachment == vulkan.AttachmentUnused {
			parts[i] = "-"
			continue
		}
		parts[i] = fmt.Sprintf("%s@%s", names[r.Attachment], LayoutName(r.Layout))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Describe renders a plan as human readable lines, one per attachment,
// subpass and dependency.
func Describe(plan *vulkan.RenderpassPlan, names []string) []string {
	var lines []string
	for i, a := range plan.Attachments {
		lines = append(lines, fmt.Sprintf("attachment %s: %s x%d %s -> %s",
			names[i], FormatName(a.Format), a.Samples, LayoutName(a.InitialLayout), LayoutName(a.FinalLayout)))
	}
	for s, sp := range plan.Subpasses {
		line := fmt.Sprintf("subpass %d: inputs %s colors %s", s, refNames(sp.Inputs, names), refNames(sp.Colors, names))
		if sp.Resolves != nil {
			line += " resolves " + refNames(sp.Resolves, names)
		}
		if sp.DepthStencil != nil {
			line += " depth " + refNames([]vulkan.AttachmentRef{*sp.DepthStencil}, names)
		}
		if len(sp.Preserves) > 0 {
			preserved := make([]string, len(sp.Preserves))
			for i, p := range sp.Preserves {
				preserved[i] = names[p]
			}
			line += " preserves [" + strings.Join(preserved, " ") + "]"
		}
		lines = append(lines, line)
	}
	for _, d := range plan.Dependencies {
		line := fmt.Sprintf("dependency %s -> %s: %s (%s) -> %s (%s)",
			subpassLabel(d.Src), subpassLabel(d.Dst),
			StageNames(d.SrcStages), AccessNames(d.SrcAccess),
			StageNames(d.DstStages), AccessNames(d.DstAccess))
		if d.Flags != 0 {
			line += " by_region"
		}
		lines = append(lines, line)
	}
	return lines
}

func subpassLabel(s uint32) string {
	if s == vulkan.SubpassExternal {
		return "external"
	}
	return fmt.Sprintf("%d", s)
}
