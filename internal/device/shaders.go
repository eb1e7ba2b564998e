package device

import "github.com/born-ml/opgraph/internal/graph"

// Built-in WGSL compute functions. Every source has a single `main` entry
// point; several operator types share a source and differ only in the
// uniform flags their kernels encode.

// Activation flags shared by the conv and elementwise sources.
const (
	FlagBias  = 1 << 0
	FlagBias2 = 1 << 1
	FlagRelu  = 1 << 2
	FlagPrelu = 1 << 3
)

// copyShader moves size elements from x to result (feed, fetch, reshape, flatten).
const copyShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx < params.size) {
        result[idx] = x[idx];
    }
}
`

// transposeShader permutes a tensor of rank <= 4 padded to 4 dims.
const transposeShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    d0: u32, d1: u32, d2: u32, d3: u32,
    p0: u32, p1: u32, p2: u32, p3: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let in_dims = array<u32, 4>(params.d0, params.d1, params.d2, params.d3);
    let perm = array<u32, 4>(params.p0, params.p1, params.p2, params.p3);
    var out_dims: array<u32, 4>;
    for (var i = 0u; i < 4u; i++) {
        out_dims[i] = in_dims[perm[i]];
    }
    var rem = idx;
    var coord: array<u32, 4>;
    for (var i = 3i; i >= 0i; i--) {
        coord[i] = rem % out_dims[i];
        rem = rem / out_dims[i];
    }
    var in_coord: array<u32, 4>;
    for (var i = 0u; i < 4u; i++) {
        in_coord[perm[i]] = coord[i];
    }
    let src = ((in_coord[0] * in_dims[1] + in_coord[1]) * in_dims[2] + in_coord[2]) * in_dims[3] + in_coord[3];
    result[idx] = x[src];
}
`

// concatShader copies one input block into its slot of the output. The
// kernel encodes one dispatch per input.
const concatShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    outer: u32,
    inner: u32,
    out_inner: u32,
    offset: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let o = idx / params.inner;
    let i = idx % params.inner;
    result[o * params.out_inner + params.offset + i] = x[idx];
}
`

// convHeader declares the layout common to every convolution source.
const convHeader = `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read> weights: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    in_c: u32, in_h: u32, in_w: u32,
    out_c: u32, out_h: u32, out_w: u32,
    k_h: u32, k_w: u32,
    stride_h: u32, stride_w: u32,
    pad_h: u32, pad_w: u32,
    dil_h: u32, dil_w: u32,
    groups: u32,
    flags: u32,
    epsilon: f32,
    alpha_len: u32,
}
`

// convBody computes the convolution sum of one output element.
const convBody = `
fn conv_at(idx: u32) -> f32 {
    let ow = idx % params.out_w;
    let oh = (idx / params.out_w) % params.out_h;
    let oc = (idx / (params.out_w * params.out_h)) % params.out_c;
    let n = idx / (params.out_w * params.out_h * params.out_c);
    let in_per_group = params.in_c / params.groups;
    let out_per_group = params.out_c / params.groups;
    let g = oc / out_per_group;
    var acc = 0.0;
    for (var ic = 0u; ic < in_per_group; ic++) {
        let c = g * in_per_group + ic;
        for (var kh = 0u; kh < params.k_h; kh++) {
            let ih = i32(oh * params.stride_h + kh * params.dil_h) - i32(params.pad_h);
            if (ih < 0 || ih >= i32(params.in_h)) {
                continue;
            }
            for (var kw = 0u; kw < params.k_w; kw++) {
                let iw = i32(ow * params.stride_w + kw * params.dil_w) - i32(params.pad_w);
                if (iw < 0 || iw >= i32(params.in_w)) {
                    continue;
                }
                let xi = ((n * params.in_c + c) * params.in_h + u32(ih)) * params.in_w + u32(iw);
                let wi = ((oc * in_per_group + ic) * params.k_h + kh) * params.k_w + kw;
                acc += src[xi] * weights[wi];
            }
        }
    }
    return acc;
}

fn channel_of(idx: u32) -> u32 {
    return (idx / (params.out_w * params.out_h)) % params.out_c;
}
`

// convShader: conv2d, depthwise_conv2d, conv_add and fusion_conv_add (bias flag).
const convShader = convHeader + `
@group(0) @binding(3) var<storage, read> bias: array<f32>;
@group(0) @binding(4) var<uniform> params: Params;
` + convBody + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    var v = conv_at(idx);
    if ((params.flags & 1u) != 0u) {
        v += bias[channel_of(idx)];
    }
    if ((params.flags & 4u) != 0u) {
        v = max(v, 0.0);
    }
    result[idx] = v;
}
`

// convBnShader: conv followed by batch norm and relu, with an optional bias.
const convBnShader = convHeader + `
@group(0) @binding(3) var<storage, read> bias: array<f32>;
@group(0) @binding(4) var<storage, read> scale: array<f32>;
@group(0) @binding(5) var<storage, read> shift: array<f32>;
@group(0) @binding(6) var<storage, read> mean: array<f32>;
@group(0) @binding(7) var<storage, read> variance: array<f32>;
@group(0) @binding(8) var<uniform> params: Params;
` + convBody + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let c = channel_of(idx);
    var v = conv_at(idx);
    if ((params.flags & 1u) != 0u) {
        v += bias[c];
    }
    v = (v - mean[c]) / sqrt(variance[c] + params.epsilon) * scale[c] + shift[c];
    if ((params.flags & 4u) != 0u) {
        v = max(v, 0.0);
    }
    result[idx] = v;
}
`

// convPreluShader: conv with one or two biases followed by prelu.
const convPreluShader = convHeader + `
@group(0) @binding(3) var<storage, read> bias: array<f32>;
@group(0) @binding(4) var<storage, read> bias2: array<f32>;
@group(0) @binding(5) var<storage, read> alpha: array<f32>;
@group(0) @binding(6) var<uniform> params: Params;
` + convBody + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let c = channel_of(idx);
    var v = conv_at(idx);
    if ((params.flags & 1u) != 0u) {
        v += bias[c];
    }
    if ((params.flags & 2u) != 0u) {
        v += bias2[c];
    }
    var a = alpha[0];
    if (params.alpha_len == params.out_c) {
        a = alpha[c];
    } else if (params.alpha_len > params.out_c) {
        a = alpha[idx % params.alpha_len];
    }
    if (v < 0.0) {
        v = v * a;
    }
    result[idx] = v;
}
`

// batchNormShader normalizes NCHW input per channel.
const batchNormShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> scale: array<f32>;
@group(0) @binding(2) var<storage, read> shift: array<f32>;
@group(0) @binding(3) var<storage, read> mean: array<f32>;
@group(0) @binding(4) var<storage, read> variance: array<f32>;
@group(0) @binding(5) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    channels: u32,
    spatial: u32,
    epsilon: f32,
}
@group(0) @binding(6) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let c = (idx / params.spatial) % params.channels;
    result[idx] = (x[idx] - mean[c]) / sqrt(variance[c] + params.epsilon) * scale[c] + shift[c];
}
`

// reluShader computes max(x, 0).
const reluShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx < params.size) {
        result[idx] = max(x[idx], 0.0);
    }
}
`

// preluShader: alpha is a scalar, per channel or per element depending on alpha_len.
const preluShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> alpha: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    channels: u32,
    spatial: u32,
    alpha_len: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    var a = alpha[0];
    if (params.alpha_len == params.channels) {
        a = alpha[(idx / params.spatial) % params.channels];
    } else if (params.alpha_len == params.size) {
        a = alpha[idx];
    }
    let v = x[idx];
    result[idx] = select(v, v * a, v < 0.0);
}
`

// elementwiseAddShader broadcasts y over x starting at the configured axis,
// optionally followed by prelu.
const elementwiseAddShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> y: array<f32>;
@group(0) @binding(2) var<storage, read> alpha: array<f32>;
@group(0) @binding(3) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    y_len: u32,
    inner: u32,
    flags: u32,
    channels: u32,
    spatial: u32,
    alpha_len: u32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    var v = x[idx] + y[(idx / params.inner) % params.y_len];
    if ((params.flags & 8u) != 0u && v < 0.0) {
        var a = alpha[0];
        if (params.alpha_len == params.channels) {
            a = alpha[(idx / params.spatial) % params.channels];
        } else if (params.alpha_len == params.size) {
            a = alpha[idx];
        }
        v = v * a;
    }
    result[idx] = v;
}
`

// softmaxShader normalizes rows of length cols; one invocation per row.
const softmaxShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let row = gid.x;
    if (row >= params.rows) {
        return;
    }
    let base = row * params.cols;
    var m = x[base];
    for (var i = 1u; i < params.cols; i++) {
        m = max(m, x[base + i]);
    }
    var sum = 0.0;
    for (var i = 0u; i < params.cols; i++) {
        let e = exp(x[base + i] - m);
        result[base + i] = e;
        sum += e;
    }
    for (var i = 0u; i < params.cols; i++) {
        result[base + i] = result[base + i] / sum;
    }
}
`

// poolShader: max (mode 0) or average (mode 1) pooling over NCHW input.
const poolShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    channels: u32,
    in_h: u32, in_w: u32,
    out_h: u32, out_w: u32,
    k_h: u32, k_w: u32,
    stride_h: u32, stride_w: u32,
    pad_h: u32, pad_w: u32,
    mode: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let ow = idx % params.out_w;
    let oh = (idx / params.out_w) % params.out_h;
    let nc = idx / (params.out_w * params.out_h);
    var acc = select(-3.4e38, 0.0, params.mode == 1u);
    var count = 0u;
    for (var kh = 0u; kh < params.k_h; kh++) {
        let ih = i32(oh * params.stride_h + kh) - i32(params.pad_h);
        if (ih < 0 || ih >= i32(params.in_h)) {
            continue;
        }
        for (var kw = 0u; kw < params.k_w; kw++) {
            let iw = i32(ow * params.stride_w + kw) - i32(params.pad_w);
            if (iw < 0 || iw >= i32(params.in_w)) {
                continue;
            }
            let v = x[(nc * params.in_h + u32(ih)) * params.in_w + u32(iw)];
            if (params.mode == 1u) {
                acc += v;
            } else {
                acc = max(acc, v);
            }
            count++;
        }
    }
    if (params.mode == 1u && count > 0u) {
        acc = acc / f32(count);
    }
    result[idx] = acc;
}
`

// convTransposeShader: conv2d_transpose, gathering every input element that
// scatters into an output element.
const convTransposeShader = convHeader + `
@group(0) @binding(3) var<storage, read> bias: array<f32>;
@group(0) @binding(4) var<uniform> params: Params;

fn tap(o: u32, k: u32, pad: u32, dil: u32, stride: u32, extent: u32) -> i32 {
    let t = i32(o + pad) - i32(k * dil);
    if (t < 0 || t % i32(stride) != 0) {
        return -1;
    }
    let i = t / i32(stride);
    if (i >= i32(extent)) {
        return -1;
    }
    return i;
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let ow = idx % params.out_w;
    let oh = (idx / params.out_w) % params.out_h;
    let oc = (idx / (params.out_w * params.out_h)) % params.out_c;
    let n = idx / (params.out_w * params.out_h * params.out_c);
    let in_per_group = params.in_c / params.groups;
    let out_per_group = params.out_c / params.groups;
    let g = oc / out_per_group;
    let ocg = oc % out_per_group;
    var acc = 0.0;
    for (var icg = 0u; icg < in_per_group; icg++) {
        let c = g * in_per_group + icg;
        for (var kh = 0u; kh < params.k_h; kh++) {
            let ih = tap(oh, kh, params.pad_h, params.dil_h, params.stride_h, params.in_h);
            if (ih < 0) {
                continue;
            }
            for (var kw = 0u; kw < params.k_w; kw++) {
                let iw = tap(ow, kw, params.pad_w, params.dil_w, params.stride_w, params.in_w);
                if (iw < 0) {
                    continue;
                }
                let xi = ((n * params.in_c + c) * params.in_h + u32(ih)) * params.in_w + u32(iw);
                let wi = ((c * out_per_group + ocg) * params.k_h + kh) * params.k_w + kw;
                acc += src[xi] * weights[wi];
            }
        }
    }
    if ((params.flags & 1u) != 0u) {
        acc += bias[oc];
    }
    result[idx] = acc;
}
`

// bilinearInterpShader resizes the two innermost dims of NCHW input.
const bilinearInterpShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    in_h: u32, in_w: u32,
    out_h: u32, out_w: u32,
    align_corners: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

fn source(o: u32, in_len: u32, out_len: u32) -> f32 {
    if (params.align_corners == 1u) {
        if (out_len <= 1u) {
            return 0.0;
        }
        return f32(o) * f32(in_len - 1u) / f32(out_len - 1u);
    }
    return max((f32(o) + 0.5) * f32(in_len) / f32(out_len) - 0.5, 0.0);
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let ow = idx % params.out_w;
    let oh = (idx / params.out_w) % params.out_h;
    let plane = idx / (params.out_w * params.out_h);
    let sh = source(oh, params.in_h, params.out_h);
    let sw = source(ow, params.in_w, params.out_w);
    let h0 = min(u32(floor(sh)), params.in_h - 1u);
    let w0 = min(u32(floor(sw)), params.in_w - 1u);
    let h1 = min(h0 + 1u, params.in_h - 1u);
    let w1 = min(w0 + 1u, params.in_w - 1u);
    let dh = sh - f32(h0);
    let dw = sw - f32(w0);
    let base = plane * params.in_h * params.in_w;
    let top = mix(x[base + h0 * params.in_w + w0], x[base + h0 * params.in_w + w1], dw);
    let bottom = mix(x[base + h1 * params.in_w + w0], x[base + h1 * params.in_w + w1], dw);
    result[idx] = mix(top, bottom, dh);
}
`

// splitShader copies one block of x along the split axis into result.
const splitShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    inner: u32,
    in_inner: u32,
    offset: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let outer = idx / params.inner;
    result[idx] = x[outer * params.in_inner + params.offset + idx % params.inner];
}
`

// shapeShader writes the dims held in its uniforms.
const shapeShader = `
@group(0) @binding(0) var<storage, read_write> result: array<f32>;

struct Params {
    rank: u32,
    dims: vec4<u32>,
}
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx < params.rank) {
        result[idx] = f32(params.dims[idx]);
    }
}
`

// priorBoxShader writes one normalized box and its variances per prior of
// every feature map cell.
const priorBoxShader = `
@group(0) @binding(0) var<storage, read_write> boxes: array<f32>;
@group(0) @binding(1) var<storage, read_write> variances: array<f32>;

struct Params {
    size: u32,
    feat_h: u32, feat_w: u32,
    num_priors: u32,
    img_h: f32, img_w: f32,
    step_h: f32, step_w: f32,
    offset: f32,
    clip: u32,
    pad0: u32, pad1: u32,
    variances: vec4<f32>,
    sizes: array<vec4<f32>, 16>,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let p = idx % params.num_priors;
    let w = (idx / params.num_priors) % params.feat_w;
    let h = idx / (params.num_priors * params.feat_w);
    let cx = (f32(w) + params.offset) * params.step_w;
    let cy = (f32(h) + params.offset) * params.step_h;
    let hs = params.sizes[p].xy * 0.5;
    var bx = vec4<f32>(
        (cx - hs.x) / params.img_w,
        (cy - hs.y) / params.img_h,
        (cx + hs.x) / params.img_w,
        (cy + hs.y) / params.img_h,
    );
    if (params.clip == 1u) {
        bx = clamp(bx, vec4<f32>(0.0), vec4<f32>(1.0));
    }
    for (var k = 0u; k < 4u; k++) {
        boxes[idx * 4u + k] = bx[k];
        variances[idx * 4u + k] = params.variances[k];
    }
}
`

// boxCoderShader decodes center-size offsets against prior boxes.
const boxCoderShader = `
@group(0) @binding(0) var<storage, read> prior: array<f32>;
@group(0) @binding(1) var<storage, read> prior_var: array<f32>;
@group(0) @binding(2) var<storage, read> targets: array<f32>;
@group(0) @binding(3) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    num_priors: u32,
    normalized: u32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let m = (idx % params.num_priors) * 4u;
    let t = idx * 4u;
    var one = 1.0;
    if (params.normalized == 1u) {
        one = 0.0;
    }
    let pw = prior[m + 2u] - prior[m] + one;
    let ph = prior[m + 3u] - prior[m + 1u] + one;
    let pcx = prior[m] + pw * 0.5;
    let pcy = prior[m + 1u] + ph * 0.5;
    let cx = prior_var[m] * targets[t] * pw + pcx;
    let cy = prior_var[m + 1u] * targets[t + 1u] * ph + pcy;
    let w = exp(prior_var[m + 2u] * targets[t + 2u]) * pw;
    let h = exp(prior_var[m + 3u] * targets[t + 3u]) * ph;
    result[t] = cx - w * 0.5;
    result[t + 1u] = cy - h * 0.5;
    result[t + 2u] = cx + w * 0.5 - one;
    result[t + 3u] = cy + h * 0.5 - one;
}
`

// multiclassNmsShader builds the candidate table suppression runs over:
// per box, the thresholded score of every class followed by the box.
const multiclassNmsShader = `
@group(0) @binding(0) var<storage, read> bboxes: array<f32>;
@group(0) @binding(1) var<storage, read> scores: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    num_boxes: u32,
    num_classes: u32,
    background: u32,
    has_background: u32,
    score_threshold: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.size) {
        return;
    }
    let row = params.num_classes + 4u;
    let col = idx % row;
    let b = (idx / row) % params.num_boxes;
    let n = idx / (row * params.num_boxes);
    if (col >= params.num_classes) {
        result[idx] = bboxes[(n * params.num_boxes + b) * 4u + col - params.num_classes];
        return;
    }
    var s = scores[(n * params.num_classes + col) * params.num_boxes + b];
    if (s < params.score_threshold || (params.has_background == 1u && col == params.background)) {
        s = 0.0;
    }
    result[idx] = s;
}
`

// builtinSources maps compute function names to their WGSL source.
func builtinSources() map[string]string {
	byOp := map[string]string{
		graph.OpFeed:                 copyShader,
		graph.OpFetch:                copyShader,
		graph.OpReshape:              copyShader,
		graph.OpFlatten:              copyShader,
		graph.OpTranspose:            transposeShader,
		graph.OpConcat:               concatShader,
		graph.OpConv2D:               convShader,
		graph.OpDepthwiseConv2D:      convShader,
		graph.OpConvAdd:              convShader,
		graph.OpConvBnRelu:           convBnShader,
		graph.OpConvAddBatchNormRelu: convBnShader,
		graph.OpDepthConvBnRelu:      convBnShader,
		graph.OpConvAddPrelu:         convPreluShader,
		graph.OpConvAddAddPrelu:      convPreluShader,
		graph.OpBatchNorm:            batchNormShader,
		graph.OpRelu:                 reluShader,
		graph.OpPrelu:                preluShader,
		graph.OpElementwiseAdd:       elementwiseAddShader,
		graph.OpElementwiseAddPrelu:  elementwiseAddShader,
		graph.OpSoftmax:              softmaxShader,
		graph.OpPool2D:               poolShader,
		graph.OpFusionConvAdd:        convShader,
		graph.OpConv2DTranspose:      convTransposeShader,
		graph.OpBilinearInterp:       bilinearInterpShader,
		graph.OpSplit:                splitShader,
		graph.OpShape:                shapeShader,
		graph.OpPriorBox:             priorBoxShader,
		graph.OpBoxCoder:             boxCoderShader,
		graph.OpMulticlassNMS:        multiclassNmsShader,
	}
	sources := make(map[string]string, len(byOp))
	for op, src := range byOp {
		sources[FunctionName(op)] = src
	}
	return sources
}
