package sandbox

// runnerSource is the Python harness executed inside the container. It reads
// a single JSON document {"code": ..., "url": ...} from stdin, executes the
// untrusted extractor with an allow-listed library surface and a minimal set
// of builtins, and prints exactly one JSON array on stdout. All diagnostics
// go to stderr as a JSON error object with a non-zero exit.
//
// The harness is defense in depth only: the container (no capabilities,
// read-only rootfs, memory/CPU/pids limits) is the actual security boundary.
const runnerSource = `#!/usr/bin/env python3
import sys
import json
import re as _re

import requests
from bs4 import BeautifulSoup


def fail(message, code=1):
    print(json.dumps({"error": message}), file=sys.stderr)
    sys.exit(code)


SAFE_BUILTINS = {
    "abs": abs, "all": all, "any": any, "bool": bool, "dict": dict,
    "enumerate": enumerate, "filter": filter, "float": float, "int": int,
    "isinstance": isinstance, "len": len, "list": list, "map": map,
    "max": max, "min": min, "range": range, "repr": repr, "reversed": reversed,
    "round": round, "set": set, "sorted": sorted, "str": str, "sum": sum,
    "tuple": tuple, "zip": zip, "Exception": Exception, "ValueError": ValueError,
    "KeyError": KeyError, "IndexError": IndexError, "TypeError": TypeError,
    "AttributeError": AttributeError, "True": True, "False": False, "None": None,
}


def main():
    try:
        payload = json.load(sys.stdin)
    except Exception:
        fail("invalid input document on stdin")

    code = payload.get("code")
    url = payload.get("url")
    if not code or not url:
        fail("missing code or url in input document")

    scope = {
        "requests": requests,
        "BeautifulSoup": BeautifulSoup,
        "json": json,
        "re": _re,
    }

    try:
        exec(code, {"__builtins__": SAFE_BUILTINS}, scope)
    except Exception as e:
        fail("extractor failed to load: %s" % e)

    fn = scope.get("extract_hackathons")
    if not callable(fn):
        fail("entry point 'extract_hackathons' not defined")

    try:
        results = fn(url)
    except Exception as e:
        fail("extractor raised: %s" % e)

    if results is None:
        results = []
    if not isinstance(results, list):
        fail("extractor returned %s, expected a list" % type(results).__name__)

    print(json.dumps(results))


if __name__ == "__main__":
    main()
`

// EntryPointName is the function the generated code must define.
const EntryPointName = "extract_hackathons"
