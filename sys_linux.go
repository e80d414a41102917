package kms

import (
	"unsafe"

	"github.com/NeowayLabs/kms/ioctl"
)

// Fixed-layout request structures for the DRM mode-setting ioctls.
// The kernel validates the argument size baked into each request code,
// so these must match include/uapi/drm/drm_mode.h byte for byte.

const (
	displayModeLen = 32
	propNameLen    = 32
)

type (
	sysVersion struct {
		major   int32
		minor   int32
		patch   int32
		namelen int64
		name    uintptr
		datelen int64
		date    uintptr
		desclen int64
		desc    uintptr
	}

	sysCapability struct {
		cap uint64
		val uint64
	}

	sysSetClientCap struct {
		capability uint64
		value      uint64
	}

	sysResources struct {
		fbIDPtr              uint64
		crtcIDPtr            uint64
		connectorIDPtr       uint64
		encoderIDPtr         uint64
		countFbs             uint32
		countCrtcs           uint32
		countConnectors      uint32
		countEncoders        uint32
		minWidth, maxWidth   uint32
		minHeight, maxHeight uint32
	}

	sysModeInfo struct {
		clock                                         uint32
		hdisplay, hsyncStart, hsyncEnd, htotal, hskew uint16
		vdisplay, vsyncStart, vsyncEnd, vtotal, vscan uint16

		vrefresh uint32

		flags uint32
		typ   uint32
		name  [displayModeLen]uint8
	}

	sysGetConnector struct {
		encodersPtr   uint64
		modesPtr      uint64
		propsPtr      uint64
		propValuesPtr uint64

		countModes    uint32
		countProps    uint32
		countEncoders uint32

		encoderID       uint32 // current encoder
		connectorID     uint32
		connectorType   uint32
		connectorTypeID uint32

		connection        uint32
		mmWidth, mmHeight uint32 // sink size in millimeters
		subpixel          uint32

		pad uint32
	}

	sysGetEncoder struct {
		encoderID   uint32
		encoderType uint32

		crtcID uint32

		possibleCrtcs  uint32
		possibleClones uint32
	}

	sysCrtc struct {
		setConnectorsPtr uint64
		countConnectors  uint32

		crtcID uint32
		fbID   uint32

		x, y uint32 // position on the framebuffer

		gammaSize uint32
		modeValid uint32
		mode      sysModeInfo
	}

	sysGetPlaneRes struct {
		planeIDPtr  uint64
		countPlanes uint32
	}

	sysGetPlane struct {
		planeID uint32

		crtcID uint32
		fbID   uint32

		possibleCrtcs uint32
		gammaSize     uint32

		countFormatTypes uint32
		formatTypePtr    uint64
	}

	sysObjGetProperties struct {
		propsPtr      uint64
		propValuesPtr uint64
		countProps    uint32
		objID         uint32
		objType       uint32
	}

	sysGetProperty struct {
		valuesPtr   uint64
		enumBlobPtr uint64

		propID uint32
		flags  uint32
		name   [propNameLen]uint8

		countValues    uint32
		countEnumBlobs uint32
	}

	sysPropertyEnum struct {
		value uint64
		name  [propNameLen]uint8
	}

	sysCreateDumb struct {
		height, width uint32
		bpp           uint32
		flags         uint32

		// returned values
		handle uint32
		pitch  uint32
		size   uint64
	}

	sysMapDumb struct {
		handle uint32 // handle of the object being mapped
		pad    uint32

		// Fake offset to use for the subsequent mmap call.
		offset uint64
	}

	sysDestroyDumb struct {
		handle uint32
	}

	sysFBCmd2 struct {
		fbID          uint32
		width, height uint32
		pixelFormat   uint32 // fourcc
		flags         uint32

		handles   [4]uint32
		pitches   [4]uint32 // pitch for each plane
		offsets   [4]uint32 // offset of each plane
		modifiers [4]uint64
	}

	sysRmFB struct {
		handle uint32
	}

	sysCreateBlob struct {
		data   uint64
		length uint32

		// returned
		blobID uint32
	}

	sysDestroyBlob struct {
		blobID uint32
	}

	sysGetBlob struct {
		blobID uint32
		length uint32
		data   uint64
	}

	sysAtomic struct {
		flags         uint32
		countObjs     uint32
		objsPtr       uint64
		countPropsPtr uint64
		propsPtr      uint64
		propValuesPtr uint64
		reserved      uint64
		userData      uint64
	}
)

const ioctlBase = 'd'

var (
	// DRM_IOWR(0x00, struct drm_version)
	ioctlVersion = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysVersion{})), ioctlBase, 0x00)

	// DRM_IOWR(0x0c, struct drm_get_cap)
	ioctlGetCap = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCapability{})), ioctlBase, 0x0c)

	// DRM_IOW(0x0d, struct drm_set_client_cap)
	ioctlSetClientCap = ioctl.NewCode(ioctl.Write,
		uint16(unsafe.Sizeof(sysSetClientCap{})), ioctlBase, 0x0d)

	// DRM_IOWR(0xA0, struct drm_mode_card_res)
	ioctlModeGetResources = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysResources{})), ioctlBase, 0xA0)

	// DRM_IOWR(0xA1, struct drm_mode_crtc)
	ioctlModeGetCrtc = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCrtc{})), ioctlBase, 0xA1)

	// DRM_IOWR(0xA6, struct drm_mode_get_encoder)
	ioctlModeGetEncoder = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetEncoder{})), ioctlBase, 0xA6)

	// DRM_IOWR(0xA7, struct drm_mode_get_connector)
	ioctlModeGetConnector = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetConnector{})), ioctlBase, 0xA7)

	// DRM_IOWR(0xAA, struct drm_mode_get_property)
	ioctlModeGetProperty = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetProperty{})), ioctlBase, 0xAA)

	// DRM_IOWR(0xAC, struct drm_mode_get_blob)
	ioctlModeGetBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetBlob{})), ioctlBase, 0xAC)

	// DRM_IOWR(0xAF, unsigned int)
	ioctlModeRmFB = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(uint32(0))), ioctlBase, 0xAF)

	// DRM_IOWR(0xB2, struct drm_mode_create_dumb)
	ioctlModeCreateDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCreateDumb{})), ioctlBase, 0xB2)

	// DRM_IOWR(0xB3, struct drm_mode_map_dumb)
	ioctlModeMapDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysMapDumb{})), ioctlBase, 0xB3)

	// DRM_IOWR(0xB4, struct drm_mode_destroy_dumb)
	ioctlModeDestroyDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysDestroyDumb{})), ioctlBase, 0xB4)

	// DRM_IOWR(0xB5, struct drm_mode_get_plane_res)
	ioctlModeGetPlaneRes = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetPlaneRes{})), ioctlBase, 0xB5)

	// DRM_IOWR(0xB6, struct drm_mode_get_plane)
	ioctlModeGetPlane = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetPlane{})), ioctlBase, 0xB6)

	// DRM_IOWR(0xB8, struct drm_mode_fb_cmd2)
	ioctlModeAddFB2 = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysFBCmd2{})), ioctlBase, 0xB8)

	// DRM_IOWR(0xB9, struct drm_mode_obj_get_properties)
	ioctlModeObjGetProperties = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysObjGetProperties{})), ioctlBase, 0xB9)

	// DRM_IOWR(0xBC, struct drm_mode_atomic)
	ioctlModeAtomic = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysAtomic{})), ioctlBase, 0xBC)

	// DRM_IOWR(0xBD, struct drm_mode_create_blob)
	ioctlModeCreateBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCreateBlob{})), ioctlBase, 0xBD)

	// DRM_IOWR(0xBE, struct drm_mode_destroy_blob)
	ioctlModeDestroyBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysDestroyBlob{})), ioctlBase, 0xBE)
)

func sysGetResources(fd uintptr) (*sysResources, []uint32, []uint32, []uint32, []uint32, error) {
	res := &sysResources{}
	err := ioctl.Do(fd, uintptr(ioctlModeGetResources), uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	var fbs, crtcs, connectors, encoders []uint32

	if res.countFbs > 0 {
		fbs = make([]uint32, res.countFbs)
		res.fbIDPtr = uint64(uintptr(unsafe.Pointer(&fbs[0])))
	}
	if res.countCrtcs > 0 {
		crtcs = make([]uint32, res.countCrtcs)
		res.crtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	if res.countConnectors > 0 {
		connectors = make([]uint32, res.countConnectors)
		res.connectorIDPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
	}
	if res.countEncoders > 0 {
		encoders = make([]uint32, res.countEncoders)
		res.encoderIDPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}

	// TODO(i4k): handle hotplugging in-between the two ioctls.
	err = ioctl.Do(fd, uintptr(ioctlModeGetResources), uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	return res, crtcs, encoders, connectors, fbs, nil
}

func sysConnector(fd uintptr, id uint32) (*sysGetConnector, []sysModeInfo, []uint32, []uint32, []uint64, error) {
	conn := &sysGetConnector{connectorID: id}
	err := ioctl.Do(fd, uintptr(ioctlModeGetConnector), uintptr(unsafe.Pointer(conn)))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	var (
		encoders   []uint32
		props      []uint32
		propValues []uint64
	)

	if conn.countProps > 0 {
		props = make([]uint32, conn.countProps)
		conn.propsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))

		propValues = make([]uint64, conn.countProps)
		conn.propValuesPtr = uint64(uintptr(unsafe.Pointer(&propValues[0])))
	}

	// The kernel probes the sink on a zero-mode query, so always ask
	// for at least one slot.
	if conn.countModes == 0 {
		conn.countModes = 1
	}
	modes := make([]sysModeInfo, conn.countModes)
	conn.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))

	if conn.countEncoders > 0 {
		encoders = make([]uint32, conn.countEncoders)
		conn.encodersPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}

	err = ioctl.Do(fd, uintptr(ioctlModeGetConnector), uintptr(unsafe.Pointer(conn)))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	modes = modes[:conn.countModes]
	return conn, modes, encoders, props, propValues, nil
}

func sysEncoder(fd uintptr, id uint32) (*sysGetEncoder, error) {
	enc := &sysGetEncoder{encoderID: id}
	err := ioctl.Do(fd, uintptr(ioctlModeGetEncoder), uintptr(unsafe.Pointer(enc)))
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func sysCrtcState(fd uintptr, id uint32) (*sysCrtc, error) {
	crtc := &sysCrtc{crtcID: id}
	err := ioctl.Do(fd, uintptr(ioctlModeGetCrtc), uintptr(unsafe.Pointer(crtc)))
	if err != nil {
		return nil, err
	}
	return crtc, nil
}

func sysPlanes(fd uintptr) ([]uint32, error) {
	res := &sysGetPlaneRes{}
	err := ioctl.Do(fd, uintptr(ioctlModeGetPlaneRes), uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, err
	}
	if res.countPlanes == 0 {
		return nil, nil
	}

	planes := make([]uint32, res.countPlanes)
	res.planeIDPtr = uint64(uintptr(unsafe.Pointer(&planes[0])))

	err = ioctl.Do(fd, uintptr(ioctlModeGetPlaneRes), uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, err
	}
	return planes[:res.countPlanes], nil
}

func sysPlane(fd uintptr, id uint32) (*sysGetPlane, []uint32, error) {
	plane := &sysGetPlane{planeID: id}
	err := ioctl.Do(fd, uintptr(ioctlModeGetPlane), uintptr(unsafe.Pointer(plane)))
	if err != nil {
		return nil, nil, err
	}

	var formats []uint32
	if plane.countFormatTypes > 0 {
		formats = make([]uint32, plane.countFormatTypes)
		plane.formatTypePtr = uint64(uintptr(unsafe.Pointer(&formats[0])))

		err = ioctl.Do(fd, uintptr(ioctlModeGetPlane), uintptr(unsafe.Pointer(plane)))
		if err != nil {
			return nil, nil, err
		}
	}
	return plane, formats, nil
}

func sysObjProperties(fd uintptr, objID, objType uint32) ([]uint32, []uint64, error) {
	req := &sysObjGetProperties{objID: objID, objType: objType}
	err := ioctl.Do(fd, uintptr(ioctlModeObjGetProperties), uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, nil, err
	}
	if req.countProps == 0 {
		return nil, nil, nil
	}

	ids := make([]uint32, req.countProps)
	values := make([]uint64, req.countProps)
	req.propsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	req.propValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))

	err = ioctl.Do(fd, uintptr(ioctlModeObjGetProperties), uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, nil, err
	}
	return ids[:req.countProps], values[:req.countProps], nil
}

func sysProperty(fd uintptr, id uint32) (*sysGetProperty, []uint64, []sysPropertyEnum, error) {
	prop := &sysGetProperty{propID: id}
	err := ioctl.Do(fd, uintptr(ioctlModeGetProperty), uintptr(unsafe.Pointer(prop)))
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		values []uint64
		enums  []sysPropertyEnum
	)

	if prop.countValues > 0 {
		values = make([]uint64, prop.countValues)
		prop.valuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}
	if prop.countEnumBlobs > 0 {
		enums = make([]sysPropertyEnum, prop.countEnumBlobs)
		prop.enumBlobPtr = uint64(uintptr(unsafe.Pointer(&enums[0])))
	}

	if prop.countValues > 0 || prop.countEnumBlobs > 0 {
		err = ioctl.Do(fd, uintptr(ioctlModeGetProperty), uintptr(unsafe.Pointer(prop)))
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return prop, values, enums, nil
}

func sysCreateDumbBuffer(fd uintptr, width, height, bpp uint32) (*sysCreateDumb, error) {
	dumb := &sysCreateDumb{width: width, height: height, bpp: bpp}
	err := ioctl.Do(fd, uintptr(ioctlModeCreateDumb), uintptr(unsafe.Pointer(dumb)))
	if err != nil {
		return nil, err
	}
	return dumb, nil
}

func sysMapDumbBuffer(fd uintptr, handle uint32) (uint64, error) {
	req := &sysMapDumb{handle: handle}
	err := ioctl.Do(fd, uintptr(ioctlModeMapDumb), uintptr(unsafe.Pointer(req)))
	if err != nil {
		return 0, err
	}
	return req.offset, nil
}

func sysDestroyDumbBuffer(fd uintptr, handle uint32) error {
	return ioctl.Do(fd, uintptr(ioctlModeDestroyDumb),
		uintptr(unsafe.Pointer(&sysDestroyDumb{handle})))
}

func sysAddFB2(fd uintptr, width, height, format, handle, pitch uint32) (uint32, error) {
	fb := &sysFBCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
	}
	fb.handles[0] = handle
	fb.pitches[0] = pitch
	err := ioctl.Do(fd, uintptr(ioctlModeAddFB2), uintptr(unsafe.Pointer(fb)))
	if err != nil {
		return 0, err
	}
	return fb.fbID, nil
}

func sysRemoveFB(fd uintptr, id uint32) error {
	return ioctl.Do(fd, uintptr(ioctlModeRmFB),
		uintptr(unsafe.Pointer(&sysRmFB{id})))
}

func sysCreatePropBlob(fd uintptr, data unsafe.Pointer, length uint32) (uint32, error) {
	blob := &sysCreateBlob{
		data:   uint64(uintptr(data)),
		length: length,
	}
	err := ioctl.Do(fd, uintptr(ioctlModeCreateBlob), uintptr(unsafe.Pointer(blob)))
	if err != nil {
		return 0, err
	}
	return blob.blobID, nil
}

func sysDestroyPropBlob(fd uintptr, id uint32) error {
	return ioctl.Do(fd, uintptr(ioctlModeDestroyBlob),
		uintptr(unsafe.Pointer(&sysDestroyBlob{id})))
}

func sysGetPropBlob(fd uintptr, id uint32) ([]byte, error) {
	blob := &sysGetBlob{blobID: id}
	err := ioctl.Do(fd, uintptr(ioctlModeGetBlob), uintptr(unsafe.Pointer(blob)))
	if err != nil {
		return nil, err
	}
	if blob.length == 0 {
		return nil, nil
	}

	data := make([]byte, blob.length)
	blob.data = uint64(uintptr(unsafe.Pointer(&data[0])))

	err = ioctl.Do(fd, uintptr(ioctlModeGetBlob), uintptr(unsafe.Pointer(blob)))
	if err != nil {
		return nil, err
	}
	return data[:blob.length], nil
}

func sysSetClientCapability(fd uintptr, capability, value uint64) error {
	return ioctl.Do(fd, uintptr(ioctlSetClientCap),
		uintptr(unsafe.Pointer(&sysSetClientCap{capability, value})))
}

func sysAtomicCommit(fd uintptr, flags uint32, objs, countProps, props []uint32, values []uint64) error {
	req := &sysAtomic{
		flags:     flags,
		countObjs: uint32(len(objs)),
	}
	if len(objs) > 0 {
		req.objsPtr = uint64(uintptr(unsafe.Pointer(&objs[0])))
		req.countPropsPtr = uint64(uintptr(unsafe.Pointer(&countProps[0])))
		req.propsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
		req.propValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}
	return ioctl.Do(fd, uintptr(ioctlModeAtomic), uintptr(unsafe.Pointer(req)))
}
