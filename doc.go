// Package kms drives displays through the kernel's DRM/KMS
// (Direct Rendering Manager / Kernel Mode Setting) interfaces.
// It opens a GPU device node, enumerates its connectors, encoders,
// CRTCs and planes, allocates CPU-mappable framebuffers and applies
// display configuration through atomic commits, where a whole set of
// property changes is accepted or rejected as one unit.
package kms
