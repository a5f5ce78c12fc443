//go:build linux && cgo

package hw

/*
#cgo pkg-config: libdrm gbm egl
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <xf86drm.h>
#include <xf86drmMode.h>
#include <gbm.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>

static PFNEGLCREATESYNCKHRPROC p_create_sync;
static PFNEGLDESTROYSYNCKHRPROC p_destroy_sync;
static PFNEGLWAITSYNCKHRPROC p_wait_sync;
static PFNEGLCLIENTWAITSYNCKHRPROC p_client_wait_sync;
static PFNEGLDUPNATIVEFENCEFDANDROIDPROC p_dup_fence_fd;

static int has_ext(const char *list, const char *ext) {
	size_t n = strlen(ext);
	const char *p = list;
	while (p && (p = strstr(p, ext)) != NULL) {
		if ((p == list || p[-1] == ' ') && (p[n] == ' ' || p[n] == '\0'))
			return 1;
		p += n;
	}
	return 0;
}

static int load_fence_procs(EGLDisplay dpy) {
	const char *exts = eglQueryString(dpy, EGL_EXTENSIONS);
	if (!has_ext(exts, "EGL_KHR_fence_sync") ||
	    !has_ext(exts, "EGL_KHR_wait_sync") ||
	    !has_ext(exts, "EGL_ANDROID_native_fence_sync"))
		return 0;
	p_create_sync = (PFNEGLCREATESYNCKHRPROC)eglGetProcAddress("eglCreateSyncKHR");
	p_destroy_sync = (PFNEGLDESTROYSYNCKHRPROC)eglGetProcAddress("eglDestroySyncKHR");
	p_wait_sync = (PFNEGLWAITSYNCKHRPROC)eglGetProcAddress("eglWaitSyncKHR");
	p_client_wait_sync = (PFNEGLCLIENTWAITSYNCKHRPROC)eglGetProcAddress("eglClientWaitSyncKHR");
	p_dup_fence_fd = (PFNEGLDUPNATIVEFENCEFDANDROIDPROC)eglGetProcAddress("eglDupNativeFenceFDANDROID");
	return p_create_sync && p_destroy_sync && p_wait_sync && p_client_wait_sync && p_dup_fence_fd;
}

static EGLSyncKHR native_fence(EGLDisplay dpy, int fd) {
	EGLint attribs[] = { EGL_SYNC_NATIVE_FENCE_FD_ANDROID, fd, EGL_NONE };
	return p_create_sync(dpy, EGL_SYNC_NATIVE_FENCE_ANDROID, attribs);
}

static void destroy_sync(EGLDisplay dpy, EGLSyncKHR s) { p_destroy_sync(dpy, s); }

static EGLint gpu_wait(EGLDisplay dpy, EGLSyncKHR s) { return p_wait_sync(dpy, s, 0); }

static EGLint client_wait(EGLDisplay dpy, EGLSyncKHR s, uint64_t ns) {
	return p_client_wait_sync(dpy, s, 0, ns ? (EGLTimeKHR)ns : EGL_FOREVER_KHR);
}

static int dup_fence_fd(EGLDisplay dpy, EGLSyncKHR s) { return p_dup_fence_fd(dpy, s); }

static EGLDisplay gbm_display(struct gbm_device *gbm) {
	PFNEGLGETPLATFORMDISPLAYEXTPROC get_platform = NULL;
	const char *exts = eglQueryString(EGL_NO_DISPLAY, EGL_EXTENSIONS);
	if (exts && has_ext(exts, "EGL_EXT_platform_base"))
		get_platform = (PFNEGLGETPLATFORMDISPLAYEXTPROC)eglGetProcAddress("eglGetPlatformDisplayEXT");
	if (get_platform)
		return get_platform(EGL_PLATFORM_GBM_KHR, gbm, NULL);
	return eglGetDisplay((EGLNativeDisplayType)gbm);
}

static uint32_t scanout_format(void) { return GBM_FORMAT_XRGB8888; }

static int choose_config(EGLDisplay dpy, EGLint visual, EGLConfig *out) {
	static const EGLint attribs[] = {
		EGL_SURFACE_TYPE, EGL_WINDOW_BIT,
		EGL_RED_SIZE, 1,
		EGL_GREEN_SIZE, 1,
		EGL_BLUE_SIZE, 1,
		EGL_ALPHA_SIZE, 0,
		EGL_RENDERABLE_TYPE, EGL_OPENGL_ES2_BIT,
		EGL_NONE
	};
	EGLint count = 0, matched = 0, found = -1;
	if (!eglGetConfigs(dpy, NULL, 0, &count) || count < 1)
		return 0;
	EGLConfig *configs = malloc(count * sizeof *configs);
	if (eglChooseConfig(dpy, attribs, configs, count, &matched)) {
		for (EGLint i = 0; i < matched && found < 0; i++) {
			EGLint id;
			if (eglGetConfigAttrib(dpy, configs[i], EGL_NATIVE_VISUAL_ID, &id) && id == visual)
				found = i;
		}
	}
	if (found >= 0)
		*out = configs[found];
	free(configs);
	return found >= 0;
}

static EGLContext gles2_context(EGLDisplay dpy, EGLConfig cfg) {
	static const EGLint attribs[] = { EGL_CONTEXT_CLIENT_VERSION, 2, EGL_NONE };
	return eglCreateContext(dpy, cfg, EGL_NO_CONTEXT, attribs);
}

static EGLSurface window_surface(EGLDisplay dpy, EGLConfig cfg, struct gbm_surface *s) {
	return eglCreateWindowSurface(dpy, cfg, (EGLNativeWindowType)s, NULL);
}

struct bo_fb {
	int fd;
	uint32_t fb_id;
};

static void bo_fb_destroy(struct gbm_bo *bo, void *data) {
	struct bo_fb *fb = data;
	if (fb->fb_id)
		drmModeRmFB(fb->fd, fb->fb_id);
	free(fb);
}

// framebuffer returns the fb attached to bo, creating it on first use. The
// fb is removed when GBM destroys the bo.
static uint32_t framebuffer(int fd, struct gbm_bo *bo) {
	struct bo_fb *fb = gbm_bo_get_user_data(bo);
	if (fb)
		return fb->fb_id;

	uint32_t handles[4] = { gbm_bo_get_handle(bo).u32 };
	uint32_t strides[4] = { gbm_bo_get_stride(bo) };
	uint32_t offsets[4] = { 0 };
	uint32_t id = 0;
	if (drmModeAddFB2(fd, gbm_bo_get_width(bo), gbm_bo_get_height(bo),
			gbm_bo_get_format(bo), handles, strides, offsets, &id, 0))
		return 0;

	fb = calloc(1, sizeof *fb);
	fb->fd = fd;
	fb->fb_id = id;
	gbm_bo_set_user_data(bo, fb, bo_fb_destroy);
	return id;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/photonicat/photonicat2_slideshow/display/kms"
)

const planeTypePrimary = 1

// Device is a kms.Device backed by libdrm, GBM and EGL. The EGL context is
// current on the calling thread after Open.
type Device struct {
	log *log.Logger

	fd          C.int
	connectorID uint32
	crtcID      uint32
	crtcIndex   int
	planeID     uint32
	mode        C.drmModeModeInfo
	modeBlob    C.uint32_t
	props       map[uint32]map[string]uint32

	gbm     *C.struct_gbm_device
	surface *C.struct_gbm_surface

	display    C.EGLDisplay
	context    C.EGLContext
	eglSurface C.EGLSurface

	// kernel writes the commit out-fence here; Go memory cannot be handed
	// to the kernel as a pointer property
	outFence *C.int

	bos   map[kms.Buffer]*C.struct_gbm_bo
	syncs map[kms.Sync]C.EGLSyncKHR
	next  kms.Sync
}

var _ kms.Device = (*Device)(nil)

// Open sets up the first connected display on path, or on the first
// KMS-capable /dev/dri/card* node when path is empty.
func Open(path string, logger *log.Logger) (*Device, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("drm")
	}
	d := &Device{
		log:   logger,
		fd:    -1,
		props: make(map[uint32]map[string]uint32),
		bos:   make(map[kms.Buffer]*C.struct_gbm_bo),
		syncs: make(map[kms.Sync]C.EGLSyncKHR),
	}
	if err := d.init(path); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) init(path string) error {
	res, err := d.openCard(path)
	if err != nil {
		return err
	}
	defer C.drmModeFreeResources(res)

	if C.drmSetClientCap(d.fd, C.DRM_CLIENT_CAP_ATOMIC, 1) != 0 {
		return errors.New("drm: atomic modesetting not supported")
	}
	if err := d.pickOutput(res); err != nil {
		return err
	}
	if err := d.pickPlane(); err != nil {
		return err
	}
	for id, kind := range map[uint32]C.uint32_t{
		d.connectorID: C.DRM_MODE_OBJECT_CONNECTOR,
		d.crtcID:      C.DRM_MODE_OBJECT_CRTC,
		d.planeID:     C.DRM_MODE_OBJECT_PLANE,
	} {
		p, _, err := d.objectProps(id, kind)
		if err != nil {
			return err
		}
		d.props[id] = p
	}
	if C.drmModeCreatePropertyBlob(d.fd, unsafe.Pointer(&d.mode), C.sizeof_drmModeModeInfo, &d.modeBlob) != 0 {
		return errors.New("drm: create mode blob failed")
	}
	d.outFence = (*C.int)(C.malloc(C.sizeof_int))
	*d.outFence = -1

	if err := d.initGBM(); err != nil {
		return err
	}
	return d.initEGL()
}

func (d *Device) openCard(path string) (C.drmModeResPtr, error) {
	candidates := []string{path}
	if path == "" {
		candidates, _ = filepath.Glob("/dev/dri/card*")
	}
	for _, p := range candidates {
		fd, err := unix.Open(p, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			d.log.Debug("skip drm node", "path", p, "err", err)
			continue
		}
		if res := C.drmModeGetResources(C.int(fd)); res != nil {
			d.fd = C.int(fd)
			d.log.Info("using drm node", "path", p)
			return res, nil
		}
		unix.Close(fd)
	}
	return nil, fmt.Errorf("drm: no KMS capable device among %v", candidates)
}

func (d *Device) pickOutput(res C.drmModeResPtr) error {
	connectors := unsafe.Slice(res.connectors, res.count_connectors)
	var conn C.drmModeConnectorPtr
	for _, id := range connectors {
		c := C.drmModeGetConnector(d.fd, id)
		if c != nil && c.connection == C.DRM_MODE_CONNECTED && c.count_modes > 0 {
			conn = c
			break
		}
		if c != nil {
			C.drmModeFreeConnector(c)
		}
	}
	if conn == nil {
		return errors.New("drm: no connected connector")
	}
	defer C.drmModeFreeConnector(conn)
	d.connectorID = uint32(conn.connector_id)

	modes := unsafe.Slice(conn.modes, conn.count_modes)
	best := -1
	for i, m := range modes {
		if m._type&C.DRM_MODE_TYPE_PREFERRED != 0 {
			best = i
			break
		}
		if best < 0 || int(m.hdisplay)*int(m.vdisplay) > int(modes[best].hdisplay)*int(modes[best].vdisplay) {
			best = i
		}
	}
	d.mode = modes[best]

	crtcs := unsafe.Slice(res.crtcs, res.count_crtcs)
	for _, encID := range unsafe.Slice(conn.encoders, conn.count_encoders) {
		enc := C.drmModeGetEncoder(d.fd, encID)
		if enc == nil {
			continue
		}
		possible := uint32(enc.possible_crtcs)
		C.drmModeFreeEncoder(enc)
		for i, crtc := range crtcs {
			if possible&(1<<i) != 0 {
				d.crtcID = uint32(crtc)
				d.crtcIndex = i
				d.log.Info("output", "connector", d.connectorID, "crtc", d.crtcID,
					"mode", C.GoString(&d.mode.name[0]), "refresh", uint32(d.mode.vrefresh))
				return nil
			}
		}
	}
	return errors.New("drm: no crtc for connector")
}

func (d *Device) pickPlane() error {
	pres := C.drmModeGetPlaneResources(d.fd)
	if pres == nil {
		return errors.New("drm: no plane resources")
	}
	defer C.drmModeFreePlaneResources(pres)

	crtcBit := uint32(1) << d.crtcIndex
	for _, id := range unsafe.Slice(pres.planes, pres.count_planes) {
		plane := C.drmModeGetPlane(d.fd, id)
		if plane == nil {
			continue
		}
		usable := uint32(plane.possible_crtcs)&crtcBit != 0
		C.drmModeFreePlane(plane)
		if !usable {
			continue
		}
		d.planeID = uint32(id)
		_, values, err := d.objectProps(uint32(id), C.DRM_MODE_OBJECT_PLANE)
		if err == nil && values["type"] == planeTypePrimary {
			return nil
		}
	}
	if d.planeID == 0 {
		return errors.New("drm: no plane for crtc")
	}
	return nil
}

// objectProps maps property names of a KMS object to ids and values.
func (d *Device) objectProps(id uint32, kind C.uint32_t) (map[string]uint32, map[string]uint64, error) {
	props := C.drmModeObjectGetProperties(d.fd, C.uint32_t(id), kind)
	if props == nil {
		return nil, nil, fmt.Errorf("drm: properties of object %d", id)
	}
	defer C.drmModeFreeObjectProperties(props)

	ids := make(map[string]uint32, props.count_props)
	values := make(map[string]uint64, props.count_props)
	propIDs := unsafe.Slice(props.props, props.count_props)
	propValues := unsafe.Slice(props.prop_values, props.count_props)
	for i, pid := range propIDs {
		p := C.drmModeGetProperty(d.fd, pid)
		if p == nil {
			continue
		}
		name := C.GoString(&p.name[0])
		ids[name] = uint32(pid)
		values[name] = uint64(propValues[i])
		C.drmModeFreeProperty(p)
	}
	return ids, values, nil
}

func (d *Device) initGBM() error {
	d.gbm = C.gbm_create_device(d.fd)
	if d.gbm == nil {
		return errors.New("gbm: create device failed")
	}
	d.surface = C.gbm_surface_create(d.gbm, C.uint32_t(d.mode.hdisplay), C.uint32_t(d.mode.vdisplay),
		C.scanout_format(), C.GBM_BO_USE_SCANOUT|C.GBM_BO_USE_RENDERING)
	if d.surface == nil {
		return errors.New("gbm: create surface failed")
	}
	return nil
}

func (d *Device) initEGL() error {
	d.display = C.gbm_display(d.gbm)
	if d.display == nil {
		return errors.New("egl: no display for gbm device")
	}
	var major, minor C.EGLint
	if C.eglInitialize(d.display, &major, &minor) == C.EGL_FALSE {
		return eglError("initialize")
	}
	if C.load_fence_procs(d.display) == 0 {
		return errors.New("egl: native fence sync extensions missing")
	}
	if C.eglBindAPI(C.EGL_OPENGL_ES_API) == C.EGL_FALSE {
		return eglError("bind api")
	}
	var config C.EGLConfig
	if C.choose_config(d.display, C.EGLint(C.scanout_format()), &config) == 0 {
		return errors.New("egl: no config matching the scanout format")
	}
	d.context = C.gles2_context(d.display, config)
	if d.context == nil {
		return eglError("create context")
	}
	d.eglSurface = C.window_surface(d.display, config, d.surface)
	if d.eglSurface == nil {
		return eglError("create window surface")
	}
	if C.eglMakeCurrent(d.display, d.eglSurface, d.eglSurface, d.context) == C.EGL_FALSE {
		return eglError("make current")
	}
	d.log.Info("egl ready", "version", fmt.Sprintf("%d.%d", major, minor),
		"vendor", C.GoString(C.eglQueryString(d.display, C.EGL_VENDOR)))
	return nil
}

func eglError(op string) error {
	return fmt.Errorf("egl: %s failed: 0x%04x", op, uint32(C.eglGetError()))
}

func (d *Device) Size() (int, int) { return int(d.mode.hdisplay), int(d.mode.vdisplay) }

func (d *Device) track(s C.EGLSyncKHR) kms.Sync {
	d.next++
	d.syncs[d.next] = s
	return d.next
}

func (d *Device) ImportFence(fd int) (kms.Sync, error) {
	s := C.native_fence(d.display, C.int(fd))
	if s == nil {
		return 0, eglError("import fence")
	}
	return d.track(s), nil
}

func (d *Device) CreateFence() (kms.Sync, error) {
	s := C.native_fence(d.display, C.EGL_NO_NATIVE_FENCE_FD_ANDROID)
	if s == nil {
		return 0, eglError("create fence")
	}
	return d.track(s), nil
}

func (d *Device) ExportFence(s kms.Sync) (int, error) {
	fd := C.dup_fence_fd(d.display, d.syncs[s])
	if fd == C.EGL_NO_NATIVE_FENCE_FD_ANDROID {
		return -1, eglError("dup fence fd")
	}
	return int(fd), nil
}

func (d *Device) DestroySync(s kms.Sync) {
	if sync, ok := d.syncs[s]; ok {
		C.destroy_sync(d.display, sync)
		delete(d.syncs, s)
	}
}

func (d *Device) GPUWait(s kms.Sync) error {
	if C.gpu_wait(d.display, d.syncs[s]) == C.EGL_FALSE {
		return eglError("wait sync")
	}
	return nil
}

func (d *Device) ClientWait(s kms.Sync, timeout time.Duration) (bool, error) {
	var ns C.uint64_t
	if timeout > 0 {
		ns = C.uint64_t(timeout.Nanoseconds())
	}
	switch C.client_wait(d.display, d.syncs[s], ns) {
	case C.EGL_CONDITION_SATISFIED_KHR:
		return true, nil
	case C.EGL_TIMEOUT_EXPIRED_KHR:
		return false, nil
	}
	return false, eglError("client wait sync")
}

func (d *Device) SwapBuffers() error {
	if C.eglSwapBuffers(d.display, d.eglSurface) == C.EGL_FALSE {
		return eglError("swap buffers")
	}
	return nil
}

func (d *Device) LockFrontBuffer() (kms.Buffer, error) {
	bo := C.gbm_surface_lock_front_buffer(d.surface)
	if bo == nil {
		return 0, errors.New("gbm: lock front buffer failed")
	}
	b := kms.Buffer(uintptr(unsafe.Pointer(bo)))
	d.bos[b] = bo
	return b, nil
}

func (d *Device) ReleaseBuffer(b kms.Buffer) {
	if bo, ok := d.bos[b]; ok {
		C.gbm_surface_release_buffer(d.surface, bo)
		delete(d.bos, b)
	}
}

func (d *Device) Framebuffer(b kms.Buffer) (uint32, error) {
	bo, ok := d.bos[b]
	if !ok {
		return 0, fmt.Errorf("gbm: buffer %#x is not locked", uintptr(b))
	}
	id := C.framebuffer(d.fd, bo)
	if id == 0 {
		return 0, errors.New("drm: add framebuffer failed")
	}
	return uint32(id), nil
}

func (d *Device) Commit(fb uint32, inFence int, modeset bool) (int, error) {
	req := C.drmModeAtomicAlloc()
	if req == nil {
		return -1, errors.New("drm: atomic alloc failed")
	}
	defer C.drmModeAtomicFree(req)

	var missing []string
	add := func(obj uint32, name string, value uint64) {
		prop, ok := d.props[obj][name]
		if !ok || C.drmModeAtomicAddProperty(req, C.uint32_t(obj), C.uint32_t(prop), C.uint64_t(value)) < 0 {
			missing = append(missing, name)
		}
	}

	flags := C.uint32_t(C.DRM_MODE_ATOMIC_NONBLOCK)
	if modeset {
		flags |= C.DRM_MODE_ATOMIC_ALLOW_MODESET
		add(d.connectorID, "CRTC_ID", uint64(d.crtcID))
		add(d.crtcID, "MODE_ID", uint64(d.modeBlob))
		add(d.crtcID, "ACTIVE", 1)
	}
	w, h := uint64(d.mode.hdisplay), uint64(d.mode.vdisplay)
	add(d.planeID, "FB_ID", uint64(fb))
	add(d.planeID, "CRTC_ID", uint64(d.crtcID))
	add(d.planeID, "SRC_X", 0)
	add(d.planeID, "SRC_Y", 0)
	add(d.planeID, "SRC_W", w<<16)
	add(d.planeID, "SRC_H", h<<16)
	add(d.planeID, "CRTC_X", 0)
	add(d.planeID, "CRTC_Y", 0)
	add(d.planeID, "CRTC_W", w)
	add(d.planeID, "CRTC_H", h)
	if inFence >= 0 {
		add(d.planeID, "IN_FENCE_FD", uint64(inFence))
	}
	*d.outFence = -1
	add(d.crtcID, "OUT_FENCE_PTR", uint64(uintptr(unsafe.Pointer(d.outFence))))
	if len(missing) > 0 {
		return -1, fmt.Errorf("drm: cannot set properties %v", missing)
	}

	if ret := C.drmModeAtomicCommit(d.fd, req, flags, nil); ret != 0 {
		return -1, fmt.Errorf("drm: atomic commit: %w", unix.Errno(-ret))
	}
	return int(*d.outFence), nil
}

func (d *Device) CloseFD(fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
}

// Close tears down whatever Open managed to set up.
func (d *Device) Close() error {
	for s := range d.syncs {
		d.DestroySync(s)
	}
	for b := range d.bos {
		d.ReleaseBuffer(b)
	}
	if d.display != nil {
		C.eglMakeCurrent(d.display, nil, nil, nil)
		if d.eglSurface != nil {
			C.eglDestroySurface(d.display, d.eglSurface)
			d.eglSurface = nil
		}
		if d.context != nil {
			C.eglDestroyContext(d.display, d.context)
			d.context = nil
		}
		C.eglTerminate(d.display)
		d.display = nil
	}
	if d.surface != nil {
		C.gbm_surface_destroy(d.surface)
		d.surface = nil
	}
	if d.gbm != nil {
		C.gbm_device_destroy(d.gbm)
		d.gbm = nil
	}
	if d.modeBlob != 0 {
		C.drmModeDestroyPropertyBlob(d.fd, d.modeBlob)
		d.modeBlob = 0
	}
	if d.outFence != nil {
		C.free(unsafe.Pointer(d.outFence))
		d.outFence = nil
	}
	if d.fd >= 0 {
		err := unix.Close(int(d.fd))
		d.fd = -1
		return err
	}
	return nil
}
