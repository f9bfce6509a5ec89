/*
Package lax implements a small text template language used to render feed and
article pages from plain context maps.

A template mixes literal text with two tag families:

	{{ name }}                      plain lookup, empty when missing
	{{ user.profile.name }}         dotted lookup, empty on any missing step
	{{ title or 'Untitled' }}       default chain
	{{= price * qty + 1 }}          evaluated expression

	{% if cond %} ... {% elif cond %} ... {% else %} ... {% endif %}
	{% for item in items %} ... {{ loop.index }} ... {% endfor %}
	{% set total = price * qty %}
	{% let label = upper(name) %}
	{% include 'header.part.html' %}

Expressions are parsed by a closed grammar (literals, arithmetic, comparison,
boolean operators, member access, indexing and calls to registered functions)
and evaluated directly over the syntax tree. Nothing in a template can reach
the host beyond the functions placed in its Registry.

Evaluation problems never abort a render. They surface as bracketed markers
such as "[Calculation Error: division by zero]" at the place they happened,
so a template author can see what went wrong. The only error Render returns is
a *ValidationError for a context key that is not identifier-shaped.

The TemplateManager loads a directory of *.tmpl.html templates and *.part.html
partials, shares one Registry between them and can hot-reload the directory.
*/
package lax
