package prer

// RenderBodyForTest exposes renderBody.
var RenderBodyForTest = renderBody
