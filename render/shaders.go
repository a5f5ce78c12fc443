package render

// Both textures are sampled on the same full-screen quad and blended by
// u_fade: 0 shows unit 0, 1 shows unit 1.
const vertexShader = `
attribute vec2 a_pos;
attribute vec2 a_uv;
varying vec2 v_uv;
void main() {
	v_uv = a_uv;
	gl_Position = vec4(a_pos, 0.0, 1.0);
}
` + "\x00"

const fragmentShader = `
precision mediump float;
varying vec2 v_uv;
uniform sampler2D u_tex0;
uniform sampler2D u_tex1;
uniform float u_fade;
void main() {
	gl_FragColor = mix(texture2D(u_tex0, v_uv), texture2D(u_tex1, v_uv), u_fade);
}
` + "\x00"

// quad is a triangle strip of x, y, u, v. Image rows are uploaded top
// first, so v runs opposite to y.
var quad = []float32{
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, 1, 1, 0,
}

const (
	quadStride   = 4 * 4
	quadVertices = 4
)
