// Package lang is an indentation-based template compiler with two code
// generation targets.
//
// A template is compiled either into a server program rendered directly in Go
// ([Engine.Compile]) or into the source of a standalone JavaScript function
// that renders the same markup in a browser ([Engine.CompileClient]).
// Expressions are expr-lang source text; the client generator emits the same
// text as JavaScript, so templates meant for the browser stay within the
// syntax both languages share.
//
// # Syntax
//
//	doctype html
//	html
//	  body#main.page(data-count=len(items))
//	    h1 Hello #{user.name}!
//	    p= user.bio
//	    p!= rawHTML
//	    | piped text
//	    if user.admin
//	      span admin
//	    else
//	      span guest
//	    each item, i in items
//	      li= item
//	    mixin badge(label, ...extra)
//	      span.badge= label
//	    +badge("new")
//	    include partials/footer
//	    //- dropped comment
//	    // emitted comment
//	    script.
//	      console.log("raw text block")
//
// # Extensions
//
// The pipeline consults registered extensions at each stage: [Scanner] at
// the start of every line before the built-in lexer rules, [ParseExtension]
// for the token kinds it claims, [NodeRewriter] once per parsed tree, and
// [VisitorExtension] for every node visited by the [Generator]. Extensions
// are collected in an [Extensions] registry passed in [Options] or carried by
// a [context.Context] (see [WithExtensions]).
package lang
