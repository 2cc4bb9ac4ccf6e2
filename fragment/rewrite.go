package fragment

import (
	"context"

	"github.com/ardnew/tmplfrag/lang"
)

// Rewrite implements [lang.NodeRewriter]. It returns a new tree in which
// every fragment declaration is a [lang.Mixin] marked as a fragment, so
// later stages handle it as the host's block construct.
//
// In server runs, the runtime script also exports the client function of
// every fragment declared so far.
func (p *Plugin) Rewrite(ctx context.Context, root *lang.Block) (*lang.Block, error) {
	cc := CompileContextFrom(ctx)

	return lang.RewriteBlock(root, func(n lang.Node) (lang.Node, bool) {
		switch n := n.(type) {
		case *lang.FragmentDeclaration:
			return &lang.Mixin{
				Pos:          n.Pos,
				Name:         n.Name,
				Params:       lang.Params(n.Params),
				Block:        n.Block,
				Fragment:     true,
				FragmentName: n.Name,
			}, true

		case *lang.Script:
			if cc == nil || cc.Target() != lang.TargetServer || n.Content != RuntimeLibrary() {
				break
			}

			if frags := cc.registry.All(); len(frags) > 0 {
				n.Content = runtimeScript(exportFragments(frags))

				return n, true
			}
		}

		return n, false
	}), nil
}
