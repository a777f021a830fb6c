package inspector

import (
	"context"
	"fmt"
	"image/color"
	"strings"
)

// idleGuard makes a mutation return null, and so be retried, unless the
// scheduler is between frames.
const idleGuard = "if (SchedulerBinding.instance.schedulerPhase != SchedulerPhase.idle) return null;"

// customExpression wraps command in a closure guarded by idleGuard. The
// evaluate API rejects line breaks, so lines are joined.
func customExpression(command string) string {
	lines := []string{"((){", idleGuard}
	lines = append(lines, strings.Split(command, "\n")...)
	lines = append(lines, "})()")
	return strings.Join(lines, "")
}

// evaluateCustom runs a mutation command once the app is idle.
func (g *ObjectGroup) evaluateCustom(ctx context.Context, command string, scope map[string]string) (bool, error) {
	if g.IsDisposed() {
		return false, nil
	}
	ref, err := g.evalWithRetry(ctx, customExpression(command), scope)
	if err != nil || ref == nil {
		return false, err
	}
	return ref.StringValue() == "true", nil
}

// SetColorProperty recolors the Text or Container widget behind target
// in place. It reports whether a render object was changed.
func (g *ObjectGroup) SetColorProperty(ctx context.Context, target *DiagnosticsNode, c color.Color) (bool, error) {
	if target == nil || target.ValueRef.IsZero() || c == nil {
		return false, nil
	}
	nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
	return g.evaluateCustom(ctx, colorCommand(target.ValueRef, nrgba), nil)
}

func colorCommand(ref RemoteHandle, c color.NRGBA) string {
	lines := []string{
		"final object = " + serviceInstance + ".toObject(" + dartString(string(ref)) + ");",
		"if (object is! Element) return false;",
		"final Element element = object;",
		fmt.Sprintf("final color = Color.fromARGB(%d,%d,%d,%d);", c.A, c.R, c.G, c.B),
		"RenderObject render = element?.renderObject;",
		"if (render is RenderParagraph) {",
		"  RenderParagraph paragraph = render;",
		"  final InlineSpan inlineSpan = paragraph.text;",
		"  if (inlineSpan is! TextSpan) return false;",
		"  final TextSpan existing = inlineSpan;",
		"  paragraph.text = TextSpan(text: existing.text,",
		"    children: existing.children,",
		"    style: existing.style.copyWith(color: color),",
		"    recognizer: existing.recognizer,",
		"    semanticsLabel: existing.semanticsLabel,",
		"  );",
		"  return true;",
		"} else {",
		"  RenderDecoratedBox findFirstMatching(Element root) {",
		"    RenderDecoratedBox match = null;",
		"    void _matchHelper(Element e) {",
		"      if (match != null || !identical(e, root) && _isLocalCreationLocation(e)) return;",
		"      final r = e.renderObject;",
		"      if (r is RenderDecoratedBox) {",
		"        match = r;",
		"        return;",
		"      }",
		"      e.visitChildElements(_matchHelper);",
		"    }",
		"    _matchHelper(root);",
		"    return match;",
		"  }",
		"  final RenderDecoratedBox render = findFirstMatching(element);",
		"  if (render != null) {",
		"    final BoxDecoration existingDecoration = render.decoration;",
		"    BoxDecoration decoration;",
		"    if (existingDecoration is BoxDecoration) {",
		"      decoration = existingDecoration.copyWith(color: color);",
		"    } else if (existingDecoration == null) {",
		"      decoration = BoxDecoration(color: color);",
		"    }",
		"    if (decoration != null) {",
		"      render.decoration = decoration;",
		"      return true;",
		"    }",
		"  }",
		"}",
		"return false;",
	}
	return strings.Join(lines, "\n")
}
