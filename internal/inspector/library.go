package inspector

import (
	"context"
	"fmt"

	"github.com/ctagard/inspector-mcp/internal/errors"
	"github.com/ctagard/inspector-mcp/internal/vmservice"
)

const (
	inspectorLibraryURI = "package:flutter/src/widgets/widget_inspector.dart"
	inspectorClassName  = "WidgetInspectorService"
)

// inspectorLibrary is the widget_inspector library inside the Flutter
// isolate, the target of every evaluation.
type inspectorLibrary struct {
	isolateID    string
	libraryID    string
	capabilities Capabilities
	paused       bool
	extensions   []string
}

// findInspectorLibrary scans the VM's isolates for the inspector library and
// reads the methods of WidgetInspectorService.
func findInspectorLibrary(ctx context.Context, svc *vmservice.Service) (*inspectorLibrary, error) {
	vm, err := svc.GetVM(ctx)
	if err != nil {
		return nil, errors.RPCFailed("getVM", err)
	}

	for _, ref := range vm.Isolates {
		if ref.IsSystemIsolate {
			continue
		}
		isolate, err := svc.GetIsolate(ctx, ref.ID)
		if err != nil {
			return nil, errors.RPCFailed("getIsolate", err)
		}
		for _, lib := range isolate.Libraries {
			if lib.URI != inspectorLibraryURI {
				continue
			}
			caps, err := readCapabilities(ctx, svc, isolate.ID, lib.ID)
			if err != nil {
				return nil, err
			}
			return &inspectorLibrary{
				isolateID:    isolate.ID,
				libraryID:    lib.ID,
				capabilities: caps,
				paused:       isolate.PauseEvent != nil && isolate.PauseEvent.IsPause(),
				extensions:   isolate.ExtensionRPCs,
			}, nil
		}
	}
	return nil, errors.InspectorNotFound(fmt.Sprintf("no isolate loads %s", inspectorLibraryURI))
}

func readCapabilities(ctx context.Context, svc *vmservice.Service, isolateID, libraryID string) (Capabilities, error) {
	library, err := svc.GetLibrary(ctx, isolateID, libraryID)
	if err != nil {
		return Capabilities{}, errors.RPCFailed("getObject", err)
	}
	for _, classRef := range library.Classes {
		if classRef.Name != inspectorClassName {
			continue
		}
		class, err := svc.GetClass(ctx, isolateID, classRef.ID)
		if err != nil {
			return Capabilities{}, errors.RPCFailed("getObject", err)
		}
		names := make([]string, 0, len(class.Functions))
		for _, fn := range class.Functions {
			names = append(names, fn.Name)
		}
		return NewCapabilities(names), nil
	}
	return Capabilities{}, errors.InspectorNotFound(inspectorClassName + " class not found")
}
