package register

// The registration pages carry no stable ids or classes, so elements
// are found by scanning for keyword matches in the page. Matched inputs
// are tagged with a data attribute so the browser layer can address
// them with a plain selector afterwards.

// jsClickLoginEntry clicks the site's login button by visible text.
const jsClickLoginEntry = `(() => {
	const kws = ['anmelden', 'login', 'sign in', 'einloggen', 'starten'];
	for (const b of document.querySelectorAll("button, [role='button']")) {
		if (b.offsetParent === null) continue;
		const t = (b.innerText || '').trim().toLowerCase();
		if (t && kws.some(k => t.includes(k))) { b.click(); return true; }
	}
	return false;
})()`

// jsClickContinue clicks the first enabled submit button, falling back
// to a continue/register text match.
const jsClickContinue = `(() => {
	for (const b of document.querySelectorAll("button[type='submit']")) {
		if (b.offsetParent !== null && !b.disabled) { b.click(); return true; }
	}
	const kws = ['weiter', 'continue', 'next', 'fortfahren', 'registrieren', 'register'];
	for (const b of document.querySelectorAll("button, [role='button']")) {
		if (b.offsetParent === null || b.disabled) continue;
		const t = (b.innerText || '').trim().toLowerCase();
		if (t && kws.some(k => t.includes(k))) { b.click(); return true; }
	}
	return false;
})()`

// jsHasVisiblePassword reports whether a password input is visible; on
// the branch-detection step that means the address already has an
// account.
const jsHasVisiblePassword = `(() => {
	for (const i of document.querySelectorAll("input[type='password']")) {
		if (i.offsetParent !== null) return true;
	}
	return false;
})()`

// jsPageText returns the lowercased visible page text.
const jsPageText = `(document.body && document.body.innerText ? document.body.innerText.toLowerCase() : '')`

// jsClickRegister clicks the register button in the account-creation
// pop-up: exact text first, fuzzy match second, never a back button.
const jsClickRegister = `(() => {
	const buttons = [...document.querySelectorAll("button, [role='button'], a.button, a[class*='button']")]
		.filter(b => b.offsetParent !== null);
	for (const b of buttons) {
		const t = (b.innerText || '').trim().toLowerCase();
		if (t === 'registrieren' || t === 'register') { b.click(); return true; }
	}
	for (const b of buttons) {
		const t = (b.innerText || '').trim().toLowerCase();
		if (t.includes('zurück') || t.includes('back')) continue;
		if (['register', 'registrieren', 'sign up'].some(k => t.includes(k))) { b.click(); return true; }
	}
	return false;
})()`

// jsTagNameInputs finds the first/last name inputs by keyword and tags
// them data-autoreg='first-name' / 'last-name'. Falls back to the first
// two plain text inputs when no keyword matches.
const jsTagNameInputs = `(() => {
	const firstKws = ['first', 'vorname', 'given', 'forename'];
	const lastKws = ['last', 'nachname', 'family', 'surname'];
	const skip = ['email', 'tel', 'phone', 'password', 'hidden', 'submit', 'button'];
	const inputs = [...document.querySelectorAll('input')]
		.filter(i => i.offsetParent !== null && !skip.includes((i.type || '').toLowerCase()));
	let first = null, last = null;
	for (const i of inputs) {
		const hay = [i.name, i.placeholder, i.autocomplete, i.id, i.getAttribute('aria-label') || '']
			.join(' ').toLowerCase();
		if (!first && firstKws.some(k => hay.includes(k))) { first = i; continue; }
		if (!last && lastKws.some(k => hay.includes(k))) { last = i; }
	}
	if (!first || !last) {
		const texty = inputs.filter(i =>
			!((i.name || '') + (i.autocomplete || '')).toLowerCase().includes('email'));
		if (texty.length >= 2) { first = texty[0]; last = texty[1]; }
	}
	if (!first || !last) return false;
	first.setAttribute('data-autoreg', 'first-name');
	last.setAttribute('data-autoreg', 'last-name');
	return true;
})()`

// jsTagPasswordInputs tags every visible password input top to bottom
// as data-autoreg='password-<n>' and returns how many were found.
const jsTagPasswordInputs = `(() => {
	const seen = new Set();
	const inputs = [];
	const sels = ["input[type='password']", "input[autocomplete='new-password']", "input[name*='pass']"];
	for (const sel of sels) {
		for (const i of document.querySelectorAll(sel)) {
			if (i.offsetParent !== null && !seen.has(i)) { seen.add(i); inputs.push(i); }
		}
	}
	inputs.sort((a, b) => a.getBoundingClientRect().top - b.getBoundingClientRect().top);
	inputs.forEach((i, idx) => i.setAttribute('data-autoreg', 'password-' + idx));
	return inputs.length;
})()`

// jsClickSetPassword clicks the set-password button by text.
const jsClickSetPassword = `(() => {
	const buttons = [...document.querySelectorAll("button, [role='button']")]
		.filter(b => b.offsetParent !== null);
	for (const b of buttons) {
		const t = (b.innerText || '').trim().toLowerCase();
		if (t === 'set password' || t === 'passwort festlegen') { b.click(); return true; }
	}
	const kws = ['set password', 'passwort festlegen', 'passwort setzen', 'password'];
	for (const b of buttons) {
		const t = (b.innerText || '').trim().toLowerCase();
		if (t && kws.some(k => t.includes(k))) { b.click(); return true; }
	}
	return false;
})()`

// jsHasUserInfo reports whether window.cwInfo.user is populated.
const jsHasUserInfo = `(typeof window.cwInfo !== 'undefined' && !!window.cwInfo.user)`

// jsUserInfo flattens the signed-in user out of window.cwInfo.
const jsUserInfo = `(() => {
	const u = (window.cwInfo || {}).user || {};
	return { userId: u.userId || u.id || 0, personId: u.personId || '' };
})()`

// jsVisibleNameInputCount counts visible inputs that look like name
// fields, the register-form signal on branch detection.
const jsVisibleNameInputCount = `(() => {
	const sel = "input[name*='name'], input[name*='first'], input[name*='last'], " +
		"input[placeholder*='name'], input[placeholder*='Name']";
	return [...document.querySelectorAll(sel)].filter(i => i.offsetParent !== null).length;
})()`
